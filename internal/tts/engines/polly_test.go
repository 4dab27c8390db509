package engines

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/voxcache/voxcache/internal/tts"
)

type fakePolly struct {
	pages       [][]types.Voice
	describeErr error
	audio       []byte
	synthErr    error
	lastInput   *polly.SynthesizeSpeechInput
	describes   int
}

func (f *fakePolly) DescribeVoices(_ context.Context, in *polly.DescribeVoicesInput, _ ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error) {
	f.describes++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	page := 0
	if in.NextToken != nil {
		page = int((*in.NextToken)[0] - '0')
	}
	out := &polly.DescribeVoicesOutput{}
	if page < len(f.pages) {
		out.Voices = f.pages[page]
	}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func (f *fakePolly) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.lastInput = in
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(f.audio))}, nil
}

func TestPollyEngine_Init(t *testing.T) {
	tests := []struct {
		name   string
		client *fakePolly
		voice  string
		wantOK bool
	}{
		{
			name:   "voice on first page",
			client: &fakePolly{pages: [][]types.Voice{{{Id: types.VoiceIdJoanna}}}},
			voice:  "Joanna",
			wantOK: true,
		},
		{
			name:   "voice on second page",
			client: &fakePolly{pages: [][]types.Voice{{{Id: types.VoiceIdMatthew}}, {{Id: types.VoiceIdJoanna}}}},
			voice:  "Joanna",
			wantOK: true,
		},
		{
			name:   "voice missing",
			client: &fakePolly{pages: [][]types.Voice{{{Id: types.VoiceIdMatthew}}}},
			voice:  "Joanna",
			wantOK: false,
		},
		{
			name:   "describe fails",
			client: &fakePolly{describeErr: errors.New("no credentials")},
			voice:  "Joanna",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewPollyEngineWithClient(tt.client, PollyConfig{Voice: tt.voice})
			err := e.Init(context.Background())
			if tt.wantOK && err != nil {
				t.Fatalf("Init() = %v", err)
			}
			if !tt.wantOK && !errors.Is(err, tts.ErrProviderUnavailable) {
				t.Fatalf("Init() = %v, want ErrProviderUnavailable", err)
			}
			voice, ok := e.CurrentVoice()
			if ok != tt.wantOK {
				t.Errorf("CurrentVoice() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && voice != tt.voice {
				t.Errorf("CurrentVoice() = %s, want %s", voice, tt.voice)
			}
		})
	}
}

func TestPollyEngine_Synthesize(t *testing.T) {
	client := &fakePolly{audio: []byte("ID3fake")}
	e := NewPollyEngineWithClient(client, PollyConfig{Voice: "Joanna", Engine: "neural", OutputFormat: "pcm", SampleRate: 16000})

	if _, err := e.Synthesize(context.Background(), "", "<speak>hi</speak>"); !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Fatalf("Synthesize() before Init = %v, want ErrProviderUnavailable", err)
	}

	e.SetVoice("Joanna")
	audio, err := e.Synthesize(context.Background(), "", "<speak>hi</speak>")
	if err != nil {
		t.Fatalf("Synthesize() = %v", err)
	}
	if string(audio) != "ID3fake" {
		t.Errorf("Synthesize() = %q", audio)
	}

	in := client.lastInput
	if in.TextType != types.TextTypeSsml {
		t.Errorf("TextType = %s, want ssml", in.TextType)
	}
	if in.VoiceId != types.VoiceIdJoanna || in.Engine != types.EngineNeural || in.OutputFormat != types.OutputFormatPcm {
		t.Errorf("input = %+v", in)
	}
	if aws.ToString(in.SampleRate) != "16000" {
		t.Errorf("SampleRate = %s", aws.ToString(in.SampleRate))
	}
	if e.Name() != "amazonPolly" {
		t.Errorf("Name() = %s", e.Name())
	}
}

func TestPollyEngine_SynthesizeFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakePolly
		want   error
	}{
		{"api error", &fakePolly{synthErr: errors.New("throttled")}, tts.ErrSynthesisFailed},
		{"deadline", &fakePolly{synthErr: context.DeadlineExceeded}, tts.ErrTimeout},
		{"empty audio", &fakePolly{audio: nil}, tts.ErrSynthesisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewPollyEngineWithClient(tt.client, PollyConfig{})
			e.SetVoice("Joanna")
			_, err := e.Synthesize(context.Background(), "Joanna", "<speak>x</speak>")
			if !errors.Is(err, tt.want) {
				t.Errorf("Synthesize() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPollyEngine_SynthesizeUsesGivenVoice(t *testing.T) {
	client := &fakePolly{audio: []byte("ID3fake")}
	e := NewPollyEngineWithClient(client, PollyConfig{})
	e.SetVoice("Matthew")

	if _, err := e.Synthesize(context.Background(), "Joanna", "<speak>hi</speak>"); err != nil {
		t.Fatalf("Synthesize() = %v", err)
	}
	if client.lastInput.VoiceId != types.VoiceIdJoanna {
		t.Errorf("VoiceId = %s, want Joanna", client.lastInput.VoiceId)
	}
}

func TestPollyEngine_SetVoiceEmptyIsUnavailable(t *testing.T) {
	e := NewPollyEngineWithClient(&fakePolly{}, PollyConfig{})
	e.SetVoice("Joanna")
	e.SetVoice("")
	if _, ok := e.CurrentVoice(); ok {
		t.Error("empty voice should mark the provider unavailable")
	}
}
