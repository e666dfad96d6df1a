package app

import (
	"context"
	"errors"
	"testing"

	"github.com/appetiteclub/apt"
)

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New(nil) should fail")
	}
	a, err := New(apt.NewConfig(), nil)
	if err != nil || a.logger == nil {
		t.Errorf("New() = %v, %v", a, err)
	}
}

func TestRunRequiresInitialize(t *testing.T) {
	a, _ := New(apt.NewConfig(), nil)
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run() before Initialize() should fail")
	}
}

func TestCloseReleasesInReverseOrder(t *testing.T) {
	a, _ := New(apt.NewConfig(), nil)
	boom := errors.New("close failed")

	var order []int
	a.closers = []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	}

	if err := a.Shutdown(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want %v", err, boom)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("close order = %v, want [2 1]", order)
	}
	if a.closers != nil {
		t.Error("closers should be cleared after close")
	}
}
