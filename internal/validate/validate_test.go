package validate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "light.kitchen", want: "light.kitchen"},
		{name: "trimmed", input: "  lock-1  ", want: "lock-1"},
		{name: "ieee address", input: "0x00158d0001a2b3c4", want: "0x00158d0001a2b3c4"},
		{name: "colon separated", input: "hub:light.porch", want: "hub:light.porch"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "slash", input: "a/b", wantErr: true},
		{name: "space inside", input: "living room", wantErr: true},
		{name: "too long", input: strings.Repeat("a", maxIDLength+1), wantErr: true},
		{name: "max length", input: strings.Repeat("a", maxIDLength), want: strings.Repeat("a", maxIDLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeviceID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("DeviceID(%q) error = %v, want ErrInvalid", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeviceID(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("DeviceID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    int
		wantErr error
	}{
		{name: "int", input: 50, want: 50},
		{name: "float rounds", input: 49.6, want: 50},
		{name: "string", input: "75", want: 75},
		{name: "json number", input: json.Number("10"), want: 10},
		{name: "lower bound", input: 0, want: 0},
		{name: "upper bound", input: 100, want: 100},
		{name: "above range", input: 101, wantErr: ErrOutOfRange},
		{name: "below range", input: -1, wantErr: ErrOutOfRange},
		{name: "not a number", input: "bright", wantErr: ErrInvalid},
		{name: "wrong type", input: true, wantErr: ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Int("brightness", tt.input, 0, 100)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Int(%v) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Int(%v) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Int(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestOutOfRangeIsInvalid(t *testing.T) {
	_, err := Float("temperature", 99.0, 5, 35)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Float() error = %v, want ErrOutOfRange", err)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Error("ErrOutOfRange should match ErrInvalid")
	}
}

type mode string

func TestEnum(t *testing.T) {
	got, err := Enum("mode", "heat", mode("off"), mode("heat"))
	if err != nil || got != "heat" {
		t.Errorf("Enum(heat) = %q, %v", got, err)
	}
	if _, err := Enum("mode", "HEAT", mode("off"), mode("heat")); !errors.Is(err, ErrInvalid) {
		t.Errorf("Enum(HEAT) error = %v, want ErrInvalid", err)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"on", "ON", "true", "True", "1", " on "} {
		if !ParseBool(s) {
			t.Errorf("ParseBool(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"off", "OFF", "false", "0", "", "yes please"} {
		if ParseBool(s) {
			t.Errorf("ParseBool(%q) = true, want false", s)
		}
	}
}

func TestBool(t *testing.T) {
	tests := []struct {
		input   any
		want    bool
		wantErr bool
	}{
		{input: true, want: true},
		{input: "ON", want: true},
		{input: "LOCKED", want: true},
		{input: "off", want: false},
		{input: float64(0), want: false},
		{input: float64(1), want: true},
		{input: "maybe", wantErr: true},
		{input: []any{}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := Bool("state", tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Bool(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Bool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestJSONFallback(t *testing.T) {
	if got := JSON([]byte("ON")); got != "ON" {
		t.Errorf("JSON(ON) = %v, want raw string", got)
	}
	if got := JSON([]byte(" 21.5 ")); got != 21.5 {
		t.Errorf("JSON(21.5) = %v, want 21.5", got)
	}
	obj, ok := JSON([]byte(`{"state":"ON"}`)).(map[string]any)
	if !ok || obj["state"] != "ON" {
		t.Errorf("JSON(object) = %v", obj)
	}
	if got := JSON(nil); got != "" {
		t.Errorf("JSON(nil) = %v, want empty string", got)
	}
}

func TestLookup(t *testing.T) {
	v := JSON([]byte(`{"state":{"brightness":80,"on":true},"linkquality":42}`))

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{path: "state.brightness", want: float64(80), wantOK: true},
		{path: "linkquality", want: float64(42), wantOK: true},
		{path: "state.missing", wantOK: false},
		{path: "linkquality.deeper", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := Lookup(v, tt.path)
		if ok != tt.wantOK {
			t.Errorf("Lookup(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Lookup(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if got, ok := Lookup("raw", ""); !ok || got != "raw" {
		t.Errorf("Lookup(empty path) = %v, %v", got, ok)
	}
}

func TestTopic(t *testing.T) {
	valid := []string{"home/kitchen/light", "zigbee2mqtt/lamp/set", "a"}
	for _, topic := range valid {
		if err := Topic(topic); err != nil {
			t.Errorf("Topic(%q) = %v, want nil", topic, err)
		}
	}
	invalid := []string{"", "home/+/light", "home/#", "bad\x00topic"}
	for _, topic := range invalid {
		if err := Topic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("Topic(%q) = %v, want ErrInvalidTopic", topic, err)
		}
	}
}

func TestTopicFilter(t *testing.T) {
	valid := []string{"zigbee2mqtt/bridge/#", "home/+/state", "#", "+"}
	for _, f := range valid {
		if err := TopicFilter(f); err != nil {
			t.Errorf("TopicFilter(%q) = %v, want nil", f, err)
		}
	}
	invalid := []string{"", "home/#/state", "home/ab#", "home/a+/state"}
	for _, f := range invalid {
		if err := TopicFilter(f); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("TopicFilter(%q) = %v, want ErrInvalidTopic", f, err)
		}
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := Retry(ctx, 2, time.Millisecond, func(context.Context) error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Retry() error = %v, want boom", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("permanent stops early", func(t *testing.T) {
		calls := 0
		fatal := errors.New("auth rejected")
		err := Retry(ctx, 5, time.Millisecond, func(context.Context) error {
			calls++
			return Permanent(fatal)
		})
		if !errors.Is(err, fatal) {
			t.Errorf("Retry() error = %v, want fatal", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}

func TestWithTimeout(t *testing.T) {
	got, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Errorf("WithTimeout() = %d, %v", got, err)
	}

	_, err = WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return 0, ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("WithTimeout() error = %v, want ErrTimeout", err)
	}
}
