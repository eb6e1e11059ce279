package replay

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestGameID(t *testing.T) {
	tests := []struct {
		name   string
		ref    []int64
		want   string
		wantOK bool
	}{
		{name: "four bytes reversed", ref: []int64{'1', '0', '0', 'h'}, want: "h001", wantOK: true},
		{name: "non word bytes dropped", ref: []int64{'1', 0, '0', 'h'}, wantOK: false},
		{name: "packed value", ref: []int64{0, int64('h')<<24 | int64('0')<<16 | int64('0')<<8 | int64('1')}, want: "h001", wantOK: true},
		{name: "small packed value", ref: []int64{0, 5}, wantOK: false},
		{name: "three bytes", ref: []int64{'a', 'b', 'c'}, wantOK: false},
		{name: "empty", ref: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GameID(tt.ref)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Expected (%q, %v), got (%q, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestIDsSkipsInvalid(t *testing.T) {
	got := IDs([]int64{'1', '0', '0', 'h'}, nil, []int64{'2', '0', '0', 'o'})
	if diff := cmp.Diff([]string{"h001", "o002"}, got); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestMapFileName(t *testing.T) {
	tests := map[string]string{
		`Maps\W3Champions\SurvivalChaos_v3.2.w3x`: "SurvivalChaos_v3.2.w3x",
		"Maps/Download/sc.w3x":                    "sc.w3x",
		"sc.w3x":                                  "sc.w3x",
		`Maps\`:                                   "",
	}
	for in, want := range tests {
		if got := (Metadata{MapName: in}).MapFileName(); got != want {
			t.Errorf("MapFileName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestExecDecoderStreamsBlocks(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	path := filepath.Join(t.TempDir(), "replay.jsonl")
	content := `{"metadata":{"mapName":"Maps\\sc.w3x","players":[{"playerId":1,"playerName":"A#1"}]}}
{"id":31,"timeIncrement":100,"commandBlocks":[{"playerId":1,"actions":[{"id":16,"orderId":[49,48,48,104]}]}]}
{"id":23,"playerId":1}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewExecDecoder(&config.Config{DecoderCmd: "cat"}, zerolog.Nop())
	r, err := d.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer r.Blocks.Close()

	if r.Metadata.MapFileName() != "sc.w3x" {
		t.Errorf("Expected sc.w3x, got %q", r.Metadata.MapFileName())
	}

	var blocks []Block
	for {
		b, err := r.Blocks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		blocks = append(blocks, b)
	}

	want := []Block{
		{ID: 31, TimeIncrement: 100, Commands: []Command{{PlayerID: 1, Actions: []Action{{ID: 16, OrderID: []int64{49, 48, 48, 104}}}}}},
		{ID: 23, PlayerID: 1},
	}
	if diff := cmp.Diff(want, blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
	if !blocks[0].IsTimeslot() || !blocks[1].IsLeave() {
		t.Error("Expected timeslot then leave block")
	}
}

func TestExecDecoderRejectsGarbage(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	path := filepath.Join(t.TempDir(), "broken.w3g")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewExecDecoder(&config.Config{DecoderCmd: "cat"}, zerolog.Nop())
	if _, err := d.Decode(context.Background(), path); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func shellDecoder(script string) *ExecDecoder {
	// the replay path lands in $1, "decoder" is $0
	return &ExecDecoder{command: []string{"sh", "-c", script, "decoder"}, logger: zerolog.Nop()}
}

func TestExecDecoderExitClassification(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tests := []struct {
		name          string
		script        string
		wantMalformed bool
	}{
		{name: "crash without output", script: "echo 'cannot find module' >&2; exit 1", wantMalformed: false},
		{name: "clean exit without output", script: "exit 0", wantMalformed: false},
		{name: "explicit rejection", script: "echo 'bad header' >&2; exit 65", wantMalformed: true},
		{name: "garbage then crash", script: "echo 'oops'; exit 1", wantMalformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := shellDecoder(tt.script).Decode(context.Background(), "match.w3g")
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if errors.Is(err, ErrMalformed) != tt.wantMalformed {
				t.Errorf("Expected malformed=%v, got %v", tt.wantMalformed, err)
			}
			if !tt.wantMalformed && !errors.Is(err, ErrDecoderFailed) {
				t.Errorf("Expected ErrDecoderFailed, got %v", err)
			}
		})
	}
}

func TestExecDecoderCrashMidStream(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	script := `echo '{"metadata":{"mapName":"sc.w3x","players":[]}}'; echo '{"id":23,"playerId":1}'; exit 1`
	r, err := shellDecoder(script).Decode(context.Background(), "match.w3g")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer r.Blocks.Close()

	if _, err := r.Blocks.Next(); err != nil {
		t.Fatalf("Expected first block, got %v", err)
	}
	_, err = r.Blocks.Next()
	if !errors.Is(err, ErrDecoderFailed) || errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrDecoderFailed, got %v", err)
	}
}
