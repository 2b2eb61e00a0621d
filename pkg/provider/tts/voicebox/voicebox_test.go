package voicebox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/standin-ai/standin/pkg/provider/tts"
)

// buildWAV assembles a minimal RIFF/WAVE file with 16-bit PCM samples.
func buildWAV(t *testing.T, rate, channels int, samples []int16) []byte {
	t.Helper()
	dataSize := len(samples) * 2
	buf := make([]byte, 0, 44+dataSize)

	le16 := func(v int) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b
	}
	le32 := func(v int) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b
	}

	buf = append(buf, "RIFF"...)
	buf = append(buf, le32(36+dataSize)...)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = append(buf, le32(16)...)
	buf = append(buf, le16(1)...) // PCM
	buf = append(buf, le16(channels)...)
	buf = append(buf, le32(rate)...)
	buf = append(buf, le32(rate*channels*2)...) // byte rate
	buf = append(buf, le16(channels*2)...)      // block align
	buf = append(buf, le16(16)...)              // bits per sample
	buf = append(buf, "data"...)
	buf = append(buf, le32(dataSize)...)
	for _, s := range samples {
		buf = append(buf, le16(int(uint16(s)))...)
	}
	return buf
}

// newTestServer serves /generate and /profiles, writing the WAV to a temp
// file the way a co-located VoiceBox server would.
func newTestServer(t *testing.T, wav []byte, duration float64, profiles []string) (*httptest.Server, *generateRequest) {
	t.Helper()
	var lastReq generateRequest
	audioPath := filepath.Join(t.TempDir(), "out.wav")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&lastReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := os.WriteFile(audioPath, wav, 0o644); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{AudioPath: audioPath, Duration: duration})
	})
	mux.HandleFunc("GET /profiles", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(profilesResponse{Profiles: profiles})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastReq
}

func TestSynthesize_DecodesClip(t *testing.T) {
	t.Parallel()
	wav := buildWAV(t, 22050, 1, []int16{0, 16384, -16384, 32767})
	srv, lastReq := newTestServer(t, wav, 1.25, []string{"anna"})

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Profile: "anna", Text: "Hello there."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if lastReq.Profile != "anna" || lastReq.Text != "Hello there." || lastReq.Language != "en" {
		t.Fatalf("server saw request %+v", *lastReq)
	}
	if clip.Rate != 22050 {
		t.Fatalf("clip rate = %d, want 22050", clip.Rate)
	}
	if len(clip.Samples) != 4 {
		t.Fatalf("clip has %d samples, want 4", len(clip.Samples))
	}
	if math.Abs(float64(clip.Samples[1])-0.5) > 0.001 {
		t.Fatalf("sample 1 = %f, want ~0.5", clip.Samples[1])
	}
	if clip.Duration != 1250*time.Millisecond {
		t.Fatalf("clip duration = %v, want 1.25s", clip.Duration)
	}
}

func TestSynthesize_EmptyProfileAutodetects(t *testing.T) {
	t.Parallel()
	wav := buildWAV(t, 22050, 1, []int16{0, 0})
	srv, lastReq := newTestServer(t, wav, 0.1, []string{"first", "second"})

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi."}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if lastReq.Profile != "first" {
		t.Fatalf("autodetected profile %q, want %q", lastReq.Profile, "first")
	}
}

func TestSynthesize_StereoIsDownmixed(t *testing.T) {
	t.Parallel()
	// Interleaved stereo: L=16384, R=0 for every frame.
	wav := buildWAV(t, 44100, 2, []int16{16384, 0, 16384, 0})
	srv, _ := newTestServer(t, wav, 0.1, []string{"anna"})

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Profile: "anna", Text: "hi."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip.Samples) != 2 {
		t.Fatalf("clip has %d samples, want 2", len(clip.Samples))
	}
	if math.Abs(float64(clip.Samples[0])-0.25) > 0.001 {
		t.Fatalf("downmixed sample = %f, want ~0.25", clip.Samples[0])
	}
}

func TestSynthesize_IgnoresChunksAfterData(t *testing.T) {
	t.Parallel()
	// A LIST/INFO chunk after the data chunk must not be decoded as audio.
	wav := buildWAV(t, 22050, 1, []int16{100, 200, 300})
	wav = append(wav, "LIST"...)
	wav = append(wav, []byte{6, 0, 0, 0}...)
	wav = append(wav, "INFOab"...)
	srv, _ := newTestServer(t, wav, 0.1, []string{"anna"})

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Profile: "anna", Text: "hi."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip.Samples) != 3 {
		t.Fatalf("clip has %d samples, want 3", len(clip.Samples))
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Profile: "x", Text: "hi."}); err == nil {
		t.Fatal("expected error on server failure")
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Profile: "x", Text: "  "}); err == nil {
		t.Fatal("expected error on empty text")
	}
}

func TestListProfiles(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil, 0, []string{"a", "b"})

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.ListProfiles(context.Background())
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("ListProfiles = %v", got)
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	t.Parallel()
	cases := map[string][]byte{
		"too short": []byte("RIFF"),
		"not riff":  []byte("JUNKxxxxWAVExxxxxxxxxxxx"),
		"no data":   append([]byte("RIFF\x00\x00\x00\x00WAVE"), []byte("fmt \x10\x00\x00\x00\x01\x00\x01\x00\x22\x56\x00\x00\x00\x00\x00\x00\x02\x00\x10\x00")...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := parseWAV(data); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
