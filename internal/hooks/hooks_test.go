package hooks

import (
	"context"
	"testing"
)

func TestRunHooksPriorityOrder(t *testing.T) {
	var d Dispatcher
	var order []string

	register := func(priority int, letter string) {
		d.RegisterHook(&Hook{
			Stage:    "pre_build",
			Kind:     NativeCallback,
			Priority: priority,
			Callback: func(ctx context.Context, pkg string) error {
				order = append(order, letter)
				return nil
			},
		})
	}
	register(20, "B")
	register(10, "A")
	register(30, "C")

	if err := d.RunHooks("pre_build", "", ""); err != nil {
		t.Fatal(err)
	}
	want := []string{"A", "B", "C"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunHooksSkipsOtherStagesAndPackages(t *testing.T) {
	var d Dispatcher
	ran := false
	d.RegisterHook(&Hook{
		Stage:   "post_build",
		Package: "other-pkg",
		Kind:    NativeCallback,
		Callback: func(ctx context.Context, pkg string) error {
			ran = true
			return nil
		},
	})
	if err := d.RunHooks("pre_build", "my-pkg", ""); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("hook for a different stage/package ran")
	}
}

func TestRunHooksConditionGating(t *testing.T) {
	var d Dispatcher
	ran := false
	d.RegisterHook(&Hook{
		Stage: "pre_build",
		Kind:  NativeCallback,
		Condition: func(pkg string) bool {
			return false
		},
		Callback: func(ctx context.Context, pkg string) error {
			ran = true
			return nil
		},
	})
	if err := d.RunHooks("pre_build", "pkg", ""); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("hook ran despite a false condition")
	}
}

func TestRunHooksRollbackOnFailure(t *testing.T) {
	var d Dispatcher
	rolledBack := false
	d.RegisterHook(&Hook{
		Stage: "pre_build",
		Kind:  NativeCallback,
		Callback: func(ctx context.Context, pkg string) error {
			return context.DeadlineExceeded
		},
		Rollback: func(ctx context.Context, pkg string) error {
			rolledBack = true
			return nil
		},
	})
	if err := d.RunHooks("pre_build", "pkg", ""); err == nil {
		t.Fatal("expected error from failing hook")
	}
	if !rolledBack {
		t.Error("rollback was not invoked after hook failure")
	}
}
