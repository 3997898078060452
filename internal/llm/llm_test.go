package llm

import (
	"encoding/json"
	"testing"
)

// The client round-trips history verbatim, so the serialized shape of a turn
// must match the Gemini contents array exactly.
func TestTurn_WireShape(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Parts: []Part{TextPart("create an order for Jane")}},
		{Role: RoleModel, Parts: []Part{
			{FunctionCall: &FunctionCall{Name: "create_order", Args: map[string]any{"client_name": "Jane"}}},
		}},
		{Role: RoleFunction, Parts: []Part{
			{FunctionResponse: &FunctionResponse{Name: "create_order", Response: map[string]any{"status": "success"}}},
		}},
	}

	data, err := json.Marshal(turns)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `[{"role":"user","parts":[{"text":"create an order for Jane"}]},` +
		`{"role":"model","parts":[{"functionCall":{"name":"create_order","args":{"client_name":"Jane"}}}]},` +
		`{"role":"function","parts":[{"functionResponse":{"name":"create_order","response":{"status":"success"}}}]}]`
	if string(data) != want {
		t.Errorf("wire shape drifted:\n got %s\nwant %s", data, want)
	}

	var back []Turn
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[1].Parts[0].FunctionCall == nil || back[1].Parts[0].FunctionCall.Name != "create_order" {
		t.Errorf("function call lost in round trip: %+v", back[1])
	}
}
