package syncworkflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
)

func TestRunAll_BoundsConcurrencyAndPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	act := domain.NewActivity("double", func(_ context.Context, in int) (int, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return in * 2, nil
	})

	r := &syncRunner{id: 1, ctx: context.Background()}
	ins := []int{0, 1, 2, 3, 4, 5, 6, 7}
	outs, errs := domain.RunActivityAll(r, act, ins, 2)

	for i, err := range errs {
		if err != nil {
			t.Fatalf("errs[%d] = %v", i, err)
		}
	}
	for i, out := range outs {
		if out != ins[i]*2 {
			t.Errorf("outs[%d] = %d, want %d", i, out, ins[i]*2)
		}
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want at most the limit 2", peak)
	}
}

func TestRunAll_ErrorsStayInTheirSlot(t *testing.T) {
	oddErr := errors.New("odd input")
	act := domain.NewActivity("odd-fails", func(_ context.Context, in int) (int, error) {
		if in%2 == 1 {
			return 0, fmt.Errorf("%w: %d", oddErr, in)
		}
		return in, nil
	})

	r := &syncRunner{id: 2, ctx: context.Background()}
	ins := []int{0, 1, 2, 3}
	outs, errs := domain.RunActivityAll(r, act, ins, 4)

	for i := range ins {
		if i%2 == 1 {
			if !errors.Is(errs[i], oddErr) {
				t.Errorf("errs[%d] = %v, want the odd input error", i, errs[i])
			}
			continue
		}
		if errs[i] != nil {
			t.Errorf("errs[%d] = %v, want nil", i, errs[i])
		}
		if outs[i] != ins[i] {
			t.Errorf("outs[%d] = %d, want %d", i, outs[i], ins[i])
		}
	}
}

func TestRunAll_UnboundedWhenLimitNotPositive(t *testing.T) {
	act := domain.NewActivity("identity", func(_ context.Context, in int) (int, error) {
		return in, nil
	})

	r := &syncRunner{id: 3, ctx: context.Background()}
	outs, errs := domain.RunActivityAll(r, act, []int{9, 8, 7}, 0)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("errs[%d] = %v", i, err)
		}
	}
	if outs[0] != 9 || outs[1] != 8 || outs[2] != 7 {
		t.Errorf("outs = %v, want input order preserved", outs)
	}
}
