package gemini

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"video-mastermind/internal/models"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

type fakeFiles struct {
	uploaded   []byte
	states     []genai.FileState
	getCalls   int
	deleted    []string
	uploadOpts *genai.UploadFileOptions
}

func (f *fakeFiles) UploadFile(_ context.Context, _ string, r io.Reader, opts *genai.UploadFileOptions) (*genai.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploaded = data
	f.uploadOpts = opts
	return &genai.File{Name: "files/abc", URI: "https://files/abc", MIMEType: opts.MIMEType, State: genai.FileStateProcessing}, nil
}

func (f *fakeFiles) GetFile(_ context.Context, name string) (*genai.File, error) {
	state := f.states[f.getCalls]
	f.getCalls++
	return &genai.File{Name: name, URI: "https://files/abc", MIMEType: "video/mp4", State: state}, nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates:    []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15},
	}
}

func newTestClient(gen *fakeGenerator, files *fakeFiles, inlineLimitMB int) *Client {
	c := newClient(files, func(string) generator { return gen }, "gemini-test", inlineLimitMB, zap.NewNop())
	c.pollInterval = time.Millisecond
	return c
}

func videoRequest() models.VideoRequest {
	return models.VideoRequest{Name: "clip.mp4", MIMEType: "video/mp4", Data: []byte("video-bytes"), Prompt: "analyze"}
}

func TestGenerateFromVideo_Inline(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"timeline_segments":`, ` []}`)}
	files := &fakeFiles{}
	c := newTestClient(gen, files, 1)

	reply, err := c.GenerateFromVideo(context.Background(), videoRequest())
	require.NoError(t, err)

	assert.Equal(t, `{"timeline_segments": []}`, reply.Text)
	assert.Equal(t, ProviderName, reply.Provider)
	assert.Equal(t, "gemini-test", reply.Model)
	assert.Equal(t, models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, reply.Usage)
	assert.NotEmpty(t, reply.Raw)

	require.Len(t, gen.parts, 2)
	assert.Equal(t, genai.Text("analyze"), gen.parts[0])
	assert.Equal(t, genai.Blob{MIMEType: "video/mp4", Data: []byte("video-bytes")}, gen.parts[1])
	assert.Nil(t, files.uploaded)
}

func TestGenerateFromVideo_FileAPI(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{}`)}
	files := &fakeFiles{states: []genai.FileState{genai.FileStateProcessing, genai.FileStateActive}}
	c := newTestClient(gen, files, 0)

	req := videoRequest()
	req.Model = "gemini-override"
	reply, err := c.GenerateFromVideo(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "gemini-override", reply.Model)

	assert.Equal(t, []byte("video-bytes"), files.uploaded)
	assert.Equal(t, "clip.mp4", files.uploadOpts.DisplayName)
	assert.Equal(t, 2, files.getCalls)
	assert.Equal(t, genai.FileData{MIMEType: "video/mp4", URI: "https://files/abc"}, gen.parts[1])
	assert.Equal(t, []string{"files/abc"}, files.deleted)
}

func TestGenerateFromVideo_FileAPIFailed(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{}`)}
	files := &fakeFiles{states: []genai.FileState{genai.FileStateFailed}}
	c := newTestClient(gen, files, 0)

	_, err := c.GenerateFromVideo(context.Background(), videoRequest())
	assert.ErrorIs(t, err, ErrFileFailed)
	assert.Equal(t, []string{"files/abc"}, files.deleted)
	assert.Nil(t, gen.parts)
}

func TestGenerateFromVideo_EmptyAndBlocked(t *testing.T) {
	c := newTestClient(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, &fakeFiles{}, 1)
	_, err := c.GenerateFromVideo(context.Background(), videoRequest())
	assert.ErrorIs(t, err, ErrEmptyResponse)

	safety := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason:  genai.FinishReasonSafety,
		SafetyRatings: []*genai.SafetyRating{{Category: genai.HarmCategoryDangerousContent, Probability: genai.HarmProbabilityHigh}},
	}}}
	c = newTestClient(&fakeGenerator{resp: safety}, &fakeFiles{}, 1)
	_, err = c.GenerateFromVideo(context.Background(), videoRequest())
	assert.ErrorIs(t, err, ErrBlocked)

	c = newTestClient(&fakeGenerator{err: &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}}}, &fakeFiles{}, 1)
	_, err = c.GenerateFromVideo(context.Background(), videoRequest())
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGenerateFromVideo_EmptyTextIsReturned(t *testing.T) {
	c := newTestClient(&fakeGenerator{resp: textResponse("   ")}, &fakeFiles{}, 1)
	reply, err := c.GenerateFromVideo(context.Background(), videoRequest())
	require.NoError(t, err)
	assert.Equal(t, "   ", reply.Text)

	noParts := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}}
	c = newTestClient(&fakeGenerator{resp: noParts}, &fakeFiles{}, 1)
	reply, err = c.GenerateFromVideo(context.Background(), videoRequest())
	require.NoError(t, err)
	assert.Empty(t, reply.Text)
}

func TestGenerateFromVideo_TransportError(t *testing.T) {
	boom := errors.New("boom")
	c := newTestClient(&fakeGenerator{err: boom}, &fakeFiles{}, 1)
	_, err := c.GenerateFromVideo(context.Background(), videoRequest())
	assert.ErrorIs(t, err, boom)
}

func TestGenerateFromVideo_InvalidRequest(t *testing.T) {
	c := newTestClient(&fakeGenerator{}, &fakeFiles{}, 1)

	req := videoRequest()
	req.Prompt = " "
	_, err := c.GenerateFromVideo(context.Background(), req)
	assert.Error(t, err)

	req = videoRequest()
	req.Data = nil
	_, err = c.GenerateFromVideo(context.Background(), req)
	assert.Error(t, err)
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "gemini-1.5-flash", 20, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFirstNChars(t *testing.T) {
	assert.Equal(t, "影片", firstNChars("影片分析", 2))
	assert.Equal(t, "abc", firstNChars("abc", 10))
}
