package checkpoint

import (
	"context"
	"fmt"
)

// Frame: キオスクから届いた照合結果。スコア計算はキオスク側で済んでいる
type Frame struct {
	PersonID   string
	Method     string
	Confidence *float64 // 0..100
}

type Verdict struct {
	Pass       bool
	Confidence *float64
	Reason     string
}

// Gate: 顔照合の可否判定
type Gate interface {
	Evaluate(ctx context.Context, f Frame) (Verdict, error)
}

// ThresholdGate: 報告されたスコアが Min 以上なら通す。Min が 0 ならスコア無しでも通す
type ThresholdGate struct {
	Min float64
}

func (g ThresholdGate) Evaluate(_ context.Context, f Frame) (Verdict, error) {
	if f.Confidence == nil {
		if g.Min > 0 {
			return Verdict{Reason: "no confidence score reported"}, nil
		}
		return Verdict{Pass: true}, nil
	}
	c := *f.Confidence
	if c < g.Min {
		return Verdict{Confidence: f.Confidence, Reason: fmt.Sprintf("confidence %.1f below threshold %.1f", c, g.Min)}, nil
	}
	return Verdict{Pass: true, Confidence: f.Confidence}, nil
}
