package utils

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMergeTree_BackfillsMissingBranches(t *testing.T) {
	defaults := map[string]interface{}{
		"settings": map[string]interface{}{"a": 1, "b": 2},
		"ai":       map[string]interface{}{"model": "x"},
	}
	loaded := map[string]interface{}{
		"settings": map[string]interface{}{"a": 10},
	}

	merged := MergeTree(defaults, loaded)

	settings := merged["settings"].(map[string]interface{})
	if settings["a"] != 10 || settings["b"] != 2 {
		t.Errorf("Unexpected settings: %v", settings)
	}
	if _, ok := merged["ai"]; !ok {
		t.Errorf("Missing branch not backfilled")
	}
	if defaults["settings"].(map[string]interface{})["a"] != 1 {
		t.Errorf("Defaults were modified")
	}
}

func TestMergeTree_LeafReplacesBranch(t *testing.T) {
	merged := MergeTree(
		map[string]interface{}{"tags": []interface{}{"a", "b"}},
		map[string]interface{}{"tags": []interface{}{"c"}},
	)
	if !reflect.DeepEqual(merged["tags"], []interface{}{"c"}) {
		t.Errorf("Lists should be replaced wholesale, got %v", merged["tags"])
	}
}

func TestMergeTree_IdempotentOnCompleteDocument(t *testing.T) {
	defaults, err := toTree(DefaultDocument())
	if err != nil {
		t.Fatal(err)
	}

	doc := DefaultDocument()
	doc.AI.Model = "glm-4"
	doc.AI.Temperature = 0.2
	doc.Settings.WorkDays = []string{"周一"}
	doc.Feishu.CheckInterval = 5
	loaded, err := toTree(doc)
	if err != nil {
		t.Fatal(err)
	}

	once := MergeTree(defaults, loaded)
	if !reflect.DeepEqual(once, loaded) {
		t.Errorf("Merging defaults into a complete document changed leaf values")
	}
	twice := MergeTree(defaults, once)
	a, _ := json.Marshal(once)
	b, _ := json.Marshal(twice)
	if string(a) != string(b) {
		t.Errorf("Merge is not idempotent:\n%s\n%s", a, b)
	}
}
