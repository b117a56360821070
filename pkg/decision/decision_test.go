package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopforge/autocore/pkg/collab"
)

func TestScore_MaxInputsYieldsTen(t *testing.T) {
	s := Score(CLOSEInputs{Convergence: 10, Leverage: 10, Optionality: 10, Surplus: 10, Evolution: 10})
	assert.Equal(t, 10.0, s.Total)
}

func TestScore_ZeroInputsYieldsZero(t *testing.T) {
	s := Score(CLOSEInputs{})
	assert.Equal(t, 0.0, s.Total)
}

func TestSelectAction_ProceedAboveApproval(t *testing.T) {
	th := thresholdsByLevel[Bold]
	result := selectAction(8.0, th, RiskLow, 0, Bold)
	assert.Equal(t, ResultProceed, result)
}

func TestSelectAction_HighRiskPauses(t *testing.T) {
	th := thresholdsByLevel[Bold]
	result := selectAction(2.0, th, RiskHigh, 0, Bold)
	assert.Equal(t, ResultPause, result)
}

func TestSelectAction_TimidBlocksMediumRisk(t *testing.T) {
	th := thresholdsByLevel[Timid]
	result := selectAction(2.0, th, RiskMedium, 0, Timid)
	assert.Equal(t, ResultBlock, result)
}

func TestEngine_EvaluatePublishesDecisionMade(t *testing.T) {
	bus := collab.NewInProcessBus()
	var seen collab.Payload
	bus.Subscribe(collab.EventDecisionMade, func(ctx context.Context, def collab.EventDef, p collab.Payload) {
		seen = p
	})

	e := NewEngine("sess-1", bus, Bold)
	d := e.Evaluate(context.Background(), TypeFeature, "add x", nil,
		CLOSEInputs{Convergence: 8, Leverage: 8, Optionality: 8, Surplus: 8, Evolution: 8},
		RiskLow, 0)

	assert.Equal(t, d.ID, seen.Fields["decision_id"])
	assert.Equal(t, ResultProceed, d.Result)
}

func TestConfidence_ClampsAboveTen(t *testing.T) {
	assert.Equal(t, 100, Confidence(15))
	assert.Equal(t, 0, Confidence(-5))
	assert.Equal(t, 50, Confidence(5))
}
