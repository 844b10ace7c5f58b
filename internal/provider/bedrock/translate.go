package bedrock

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/tidwall/gjson"
)

// converseParams holds the translated pieces shared by Converse and
// ConverseStream inputs.
type converseParams struct {
	modelID   string
	system    []types.SystemContentBlock
	messages  []types.Message
	inference *types.InferenceConfiguration
}

// translateRequest maps an OpenAI chat-completions body to Converse
// parameters. System messages move to the dedicated system field; inference
// settings are included only for keys the client actually sent, so Bedrock
// model defaults apply otherwise.
func translateRequest(body []byte, modelID string) *converseParams {
	p := &converseParams{modelID: modelID}

	for _, msg := range gjson.GetBytes(body, "messages").Array() {
		role := msg.Get("role").String()
		text := contentText(msg.Get("content"))
		if role == "system" {
			p.system = append(p.system, &types.SystemContentBlockMemberText{Value: text})
			continue
		}
		p.messages = append(p.messages, types.Message{
			Role:    types.ConversationRole(role),
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		})
	}

	var inf types.InferenceConfiguration
	set := false
	if v := gjson.GetBytes(body, "temperature"); v.Exists() {
		inf.Temperature = aws.Float32(float32(v.Float()))
		set = true
	}
	if v := gjson.GetBytes(body, "max_tokens"); v.Exists() {
		inf.MaxTokens = aws.Int32(int32(v.Int()))
		set = true
	}
	if v := gjson.GetBytes(body, "top_p"); v.Exists() {
		inf.TopP = aws.Float32(float32(v.Float()))
		set = true
	}
	if v := gjson.GetBytes(body, "stop"); v.Exists() {
		inf.StopSequences = stopSequences(v)
		set = true
	}
	if set {
		p.inference = &inf
	}
	return p
}

func (p *converseParams) converseInput() *bedrockruntime.ConverseInput {
	return &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.modelID),
		System:          p.system,
		Messages:        p.messages,
		InferenceConfig: p.inference,
	}
}

func (p *converseParams) converseStreamInput() *bedrockruntime.ConverseStreamInput {
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(p.modelID),
		System:          p.system,
		Messages:        p.messages,
		InferenceConfig: p.inference,
	}
}

// contentText flattens a chat message content value to plain text. String
// content passes through; multipart arrays contribute their text parts.
func contentText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var text string
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			text += part.Get("text").String()
		}
	}
	return text
}

func stopSequences(v gjson.Result) []string {
	if !v.IsArray() {
		return []string{v.String()}
	}
	var seqs []string
	for _, s := range v.Array() {
		seqs = append(seqs, s.String())
	}
	return seqs
}

// chatCompletion is the OpenAI-shaped response envelope the adapter
// synthesizes from a Converse result.
type chatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

// translateResponse maps a Converse result back to the chat-completions
// shape clients expect.
func translateResponse(out *bedrockruntime.ConverseOutput, modelID string, now time.Time) []byte {
	var text string
	if m, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range m.Value.Content {
			if t, ok := block.(*types.ContentBlockMemberText); ok {
				text += t.Value
			}
		}
	}

	var in, outTok int32
	if out.Usage != nil {
		in = aws.ToInt32(out.Usage.InputTokens)
		outTok = aws.ToInt32(out.Usage.OutputTokens)
	}

	b, _ := json.Marshal(chatCompletion{
		ID:      fmt.Sprintf("bedrock-%d", now.Unix()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   modelID,
		Choices: []choice{{
			Index:        0,
			Message:      message{Role: "assistant", Content: text},
			FinishReason: finishReason(out.StopReason),
		}},
		Usage: usage{PromptTokens: in, CompletionTokens: outTok, TotalTokens: in + outTok},
	})
	return b
}

// finishReason maps Bedrock stop reasons to the two values the
// chat-completions contract uses.
func finishReason(r types.StopReason) string {
	if r == types.StopReasonMaxTokens {
		return "length"
	}
	return "stop"
}
