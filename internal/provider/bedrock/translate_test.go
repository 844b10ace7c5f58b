package bedrock

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/tidwall/gjson"
)

func TestTranslateRequest(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "system", "content": "You are terse."},
			{"role": "user", "content": "Hi"},
			{"role": "assistant", "content": "Hello."},
			{"role": "user", "content": "Bye"}
		],
		"temperature": 0.2,
		"max_tokens": 256
	}`)

	p := translateRequest(body, "anthropic.claude-3-sonnet-20240229-v1:0")
	in := p.converseInput()

	if *in.ModelId != "anthropic.claude-3-sonnet-20240229-v1:0" {
		t.Errorf("ModelId = %q", *in.ModelId)
	}
	if len(in.System) != 1 {
		t.Fatalf("System = %d blocks, want 1", len(in.System))
	}
	if sys := in.System[0].(*types.SystemContentBlockMemberText); sys.Value != "You are terse." {
		t.Errorf("system text = %q", sys.Value)
	}
	if len(in.Messages) != 3 {
		t.Fatalf("Messages = %d, want 3 (system removed)", len(in.Messages))
	}
	if in.Messages[0].Role != types.ConversationRoleUser {
		t.Errorf("first role = %q", in.Messages[0].Role)
	}
	if txt := in.Messages[1].Content[0].(*types.ContentBlockMemberText); txt.Value != "Hello." {
		t.Errorf("assistant text = %q", txt.Value)
	}
	if in.InferenceConfig == nil {
		t.Fatal("InferenceConfig = nil")
	}
	if got := aws.ToFloat32(in.InferenceConfig.Temperature); got != 0.2 {
		t.Errorf("Temperature = %v", got)
	}
	if got := aws.ToInt32(in.InferenceConfig.MaxTokens); got != 256 {
		t.Errorf("MaxTokens = %v", got)
	}
	if in.InferenceConfig.TopP != nil {
		t.Error("TopP set without top_p in request")
	}
}

func TestTranslateRequest_NoInferenceConfig(t *testing.T) {
	t.Parallel()

	p := translateRequest([]byte(`{"messages":[{"role":"user","content":"Hi"}]}`), "m")
	if p.converseInput().InferenceConfig != nil {
		t.Error("InferenceConfig set for request without sampling params")
	}
}

func TestTranslateRequest_StopSequences(t *testing.T) {
	t.Parallel()

	p := translateRequest([]byte(`{"messages":[],"stop":["END","STOP"]}`), "m")
	got := p.converseInput().InferenceConfig.StopSequences
	if len(got) != 2 || got[0] != "END" || got[1] != "STOP" {
		t.Errorf("StopSequences = %v", got)
	}

	p = translateRequest([]byte(`{"messages":[],"stop":"END"}`), "m")
	got = p.converseInput().InferenceConfig.StopSequences
	if len(got) != 1 || got[0] != "END" {
		t.Errorf("StopSequences = %v, want single END", got)
	}
}

func TestTranslateRequest_MultipartContent(t *testing.T) {
	t.Parallel()

	body := []byte(`{"messages":[{"role":"user","content":[
		{"type": "text", "text": "Describe "},
		{"type": "image_url", "image_url": {"url": "https://x/y.png"}},
		{"type": "text", "text": "this"}
	]}]}`)
	p := translateRequest(body, "m")
	txt := p.messages[0].Content[0].(*types.ContentBlockMemberText)
	if txt.Value != "Describe this" {
		t.Errorf("content = %q", txt.Value)
	}
}

func TestTranslateResponse(t *testing.T) {
	t.Parallel()

	out := &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: "Hello "},
					&types.ContentBlockMemberText{Value: "there"},
				},
			},
		},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(4),
		},
	}

	now := time.Unix(1700000000, 0)
	b := translateResponse(out, "anthropic.claude-3-sonnet-20240229-v1:0", now)

	if got := gjson.GetBytes(b, "id").String(); got != "bedrock-1700000000" {
		t.Errorf("id = %q", got)
	}
	if got := gjson.GetBytes(b, "object").String(); got != "chat.completion" {
		t.Errorf("object = %q", got)
	}
	if got := gjson.GetBytes(b, "choices.0.message.content").String(); got != "Hello there" {
		t.Errorf("content = %q", got)
	}
	if got := gjson.GetBytes(b, "choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("finish_reason = %q", got)
	}
	if got := gjson.GetBytes(b, "usage.total_tokens").Int(); got != 16 {
		t.Errorf("total_tokens = %d", got)
	}
}

func TestTranslateResponse_MaxTokens(t *testing.T) {
	t.Parallel()

	out := &bedrockruntime.ConverseOutput{
		Output:     &types.ConverseOutputMemberMessage{Value: types.Message{}},
		StopReason: types.StopReasonMaxTokens,
	}
	b := translateResponse(out, "m", time.Unix(0, 0))

	if got := gjson.GetBytes(b, "choices.0.finish_reason").String(); got != "length" {
		t.Errorf("finish_reason = %q, want length", got)
	}
	if got := gjson.GetBytes(b, "usage.total_tokens").Int(); got != 0 {
		t.Errorf("total_tokens = %d, want 0 default", got)
	}
}
