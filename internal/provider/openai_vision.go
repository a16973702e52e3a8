package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// OpenAIVisionProvider implements OCRProvider on top of an OpenAI-compatible
// chat completion endpoint with image input
type OpenAIVisionProvider struct {
	name       string
	config     types.OCRProviderConfig
	httpClient *http.Client
	model      string
	log        zerolog.Logger
}

// NewOpenAIVisionProvider creates a new vision-model recognizer
func NewOpenAIVisionProvider(config types.OCRProviderConfig, log zerolog.Logger) (*OpenAIVisionProvider, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for OpenAI vision provider")
	}
	model := config.Options["model"]
	if model == "" {
		return nil, fmt.Errorf("model is required for OpenAI vision provider (set in options.model)")
	}

	return &OpenAIVisionProvider{
		name:   config.Name,
		config: config,
		httpClient: &http.Client{
			Timeout: parseTimeout(config.Options, 60*time.Second),
		},
		model: model,
		log:   log.With().Str("provider", config.Name).Logger(),
	}, nil
}

func (o *OpenAIVisionProvider) Name() string {
	return o.name
}

// Init verifies the endpoint is reachable
func (o *OpenAIVisionProvider) Init(ctx context.Context) error {
	return pingModels(ctx, o.httpClient, o.log, o.config.Endpoint, o.config.APIKey)
}

// ExtractText sends the image to the model and parses positioned text
func (o *OpenAIVisionProvider) ExtractText(ctx context.Context, req OCRRequest) (*OCRResponse, error) {
	if len(req.ImageData) == 0 {
		return nil, fmt.Errorf("image data is required")
	}

	content, err := o.callChatCompletion(ctx, o.buildPrompt(req), req.ImageData)
	if err != nil {
		return nil, fmt.Errorf("failed to call vision API: %w", err)
	}

	return o.parseRecognitionResponse(content, req), nil
}

func (o *OpenAIVisionProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// buildPrompt creates the instruction sent alongside the image
func (o *OpenAIVisionProvider) buildPrompt(req OCRRequest) string {
	var sb strings.Builder

	sb.WriteString("You are an OCR engine for comic pages. Transcribe every line of text visible in the image.\n\n")
	if req.Width > 0 && req.Height > 0 {
		sb.WriteString(fmt.Sprintf("The image is %d pixels wide and %d pixels tall. ", req.Width, req.Height))
	}
	sb.WriteString("For each line, report its pixel bounding box with the origin at the top-left corner.\n")
	if req.Language != "" {
		sb.WriteString(fmt.Sprintf("The expected language is %s.\n", req.Language))
	}
	sb.WriteString("\nRespond with a JSON array. Each element must have the following structure:\n")
	sb.WriteString(`{"text": "line text", "x": 0, "y": 0, "width": 0, "height": 0, "confidence": 0.9}`)
	sb.WriteString("\n\nProvide ONLY the JSON array, no additional text.")

	return sb.String()
}

type visionChatRequest struct {
	Model       string          `json:"model"`
	Messages    []visionMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	User        string          `json:"user,omitempty"`
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// callChatCompletion calls the chat completion endpoint with one image
func (o *OpenAIVisionProvider) callChatCompletion(ctx context.Context, prompt string, image []byte) (string, error) {
	requestID := uuid.NewString()

	reqBody := visionChatRequest{
		Model: o.model,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURI(image)}},
				},
			},
		},
		User: requestID,
	}
	if tempStr, ok := o.config.Options["temperature"]; ok {
		var temp float64
		if _, err := fmt.Sscanf(tempStr, "%f", &temp); err == nil {
			reqBody.Temperature = &temp
		} else {
			o.log.Warn().Str("temperature", tempStr).Msg("Ignoring invalid temperature")
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := endpointURL(o.config.Endpoint, "chat/completions")
	log := o.log.With().Str("request_id", requestID).Logger()
	log.Debug().
		Str("endpoint", endpoint).
		Int("image_bytes", len(image)).
		Msg("Recognition request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.config.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.config.APIKey))
	}

	startTime := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		log.Warn().Err(err).Dur("took", duration).Msg("Recognition request failed")
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError(log, resp.StatusCode, body)
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in API response")
	}

	content := apiResp.Choices[0].Message.Content
	log.Debug().
		Dur("took", duration).
		Int("total_tokens", apiResp.Usage.TotalTokens).
		Str("finish_reason", apiResp.Choices[0].FinishReason).
		Str("content", truncateForLog(content, 500)).
		Msg("Recognition response")

	return content, nil
}

// parseRecognitionResponse extracts positioned lines from the model output.
// Output that is not a JSON array is kept as a single fragment covering the
// whole image.
func (o *OpenAIVisionProvider) parseRecognitionResponse(content string, req OCRRequest) *OCRResponse {
	content = strings.TrimSpace(content)
	whole := &OCRResponse{
		Text:       content,
		Confidence: 0.5,
		Fragments: []types.TextFragment{
			{Text: content, Box: types.BoundingBox{Width: req.Width, Height: req.Height}, Confidence: 0.5},
		},
	}
	if content == "" {
		return &OCRResponse{}
	}

	startIdx := strings.Index(content, "[")
	endIdx := strings.LastIndex(content, "]")
	if startIdx == -1 || endIdx == -1 || startIdx >= endIdx {
		return whole
	}

	type line struct {
		Text       string   `json:"text"`
		X          int      `json:"x"`
		Y          int      `json:"y"`
		Width      int      `json:"width"`
		Height     int      `json:"height"`
		Confidence *float64 `json:"confidence"`
	}
	var lines []line
	if err := json.Unmarshal([]byte(content[startIdx:endIdx+1]), &lines); err != nil {
		o.log.Debug().Err(err).Msg("Recognition output is not a line array")
		return whole
	}

	resp := &OCRResponse{Fragments: make([]types.TextFragment, 0, len(lines))}
	texts := make([]string, 0, len(lines))
	var total float64
	for _, l := range lines {
		text := strings.TrimSpace(l.Text)
		if text == "" {
			continue
		}
		conf := 0.8
		if l.Confidence != nil && *l.Confidence >= 0 && *l.Confidence <= 1 {
			conf = *l.Confidence
		}
		resp.Fragments = append(resp.Fragments, types.TextFragment{
			Text:       text,
			Box:        types.BoundingBox{X: l.X, Y: l.Y, Width: l.Width, Height: l.Height},
			Confidence: conf,
		})
		texts = append(texts, text)
		total += conf
	}
	resp.Text = strings.Join(texts, "\n")
	if len(resp.Fragments) > 0 {
		resp.Confidence = total / float64(len(resp.Fragments))
	}
	return resp
}

// dataURI encodes image bytes for inline transport
func dataURI(data []byte) string {
	mime := http.DetectContentType(data)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
