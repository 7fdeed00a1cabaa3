package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/deckd/internal/engine"
	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
	"github.com/roach88/deckd/internal/testutil"
)

// Run executes a scenario against the real engine and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Record the device and save the profile built from Bindings
//  3. Enqueue every flow step, stop the engine and drain the queue
//  4. Collect the recorded messages and evaluate assertions
//
// An error is returned only when the scenario cannot be set up. Assertion
// failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	info := scenario.DeviceInfo()
	profileID := scenario.ProfileID()

	if err := st.UpsertDevice(ctx, info); err != nil {
		return nil, fmt.Errorf("record device: %w", err)
	}
	p, err := buildProfile(scenario, info.NewProfile(profileID))
	if err != nil {
		return nil, err
	}
	if _, err := st.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if err := st.SelectProfile(ctx, info.ID, profileID); err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}

	sender := testutil.NewRecordingSender()
	for _, to := range scenario.Fail {
		sender.Fail[to] = true
	}
	clk := testutil.NewFakeClock()

	var (
		mu     sync.Mutex
		opened = []string{}
	)
	eng := engine.New(st, sender,
		engine.WithClock(clk),
		engine.WithTraceGenerator(testutil.NewFixedTraceGenerator(scenario.Name)),
		engine.WithPlugins(func() []string { return scenario.Plugins }),
		engine.WithOpener(func(_ context.Context, url string) error {
			mu.Lock()
			defer mu.Unlock()
			opened = append(opened, url)
			return nil
		}),
	)

	for i, step := range scenario.Flow {
		ev, err := step.event(info)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		eng.Enqueue(ev)
	}
	eng.Stop()
	if err := eng.Run(ctx); err != nil {
		return nil, fmt.Errorf("run engine: %w", err)
	}

	result := NewResult()
	result.Elapsed = clk.Elapsed()
	mu.Lock()
	result.Opened = append(result.Opened, opened...)
	mu.Unlock()

	for _, sent := range sender.Sent() {
		if err := result.AddTrace(sent.Target, sent.To, sent.Body); err != nil {
			return nil, fmt.Errorf("decode sent message: %w", err)
		}
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Device:  info.ID,
		Profile: profileID,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func buildProfile(scenario *Scenario, p *profile.Profile) (*profile.Profile, error) {
	for i, b := range scenario.Bindings {
		ctrl, err := b.controller()
		if err != nil {
			return nil, fmt.Errorf("bindings[%d]: %w", i, err)
		}
		inst, err := b.Instance(ctrl)
		if err != nil {
			return nil, fmt.Errorf("bindings[%d]: %w", i, err)
		}
		if err := p.Bind(ctrl, b.Position, inst); err != nil {
			return nil, fmt.Errorf("bindings[%d]: %w", i, err)
		}
	}
	return p, nil
}
