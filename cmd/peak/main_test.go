package main

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestRun_Success(t *testing.T) {
	origExec := executeCmd
	origMap := mapExitCode
	t.Cleanup(func() {
		executeCmd = origExec
		mapExitCode = origMap
	})

	var gotArgs []string
	executeCmd = func(_ context.Context, args []string) error {
		gotArgs = append([]string(nil), args...)
		return nil
	}
	mapExitCode = func(_ error) int {
		t.Fatal("mapExitCode should not be called on success")
		return 99
	}

	code := run([]string{"version"})
	if code != 0 {
		t.Fatalf("run() code = %d, want 0", code)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "version" {
		t.Fatalf("args = %v, want [version]", gotArgs)
	}
}

func TestRun_ErrorUsesMappedExitCode(t *testing.T) {
	origExec := executeCmd
	origMap := mapExitCode
	t.Cleanup(func() {
		executeCmd = origExec
		mapExitCode = origMap
	})

	executeErr := errors.New("boom")
	executeCmd = func(_ context.Context, _ []string) error {
		return executeErr
	}
	mapExitCode = func(err error) int {
		if !errors.Is(err, executeErr) {
			t.Fatalf("mapExitCode got err %v, want %v", err, executeErr)
		}
		return 4
	}

	if code := run([]string{"api", "/missing"}); code != 4 {
		t.Fatalf("run() code = %d, want 4", code)
	}
}

func TestMain_UsesTerminateWithRunCode(t *testing.T) {
	origExec := executeCmd
	origMap := mapExitCode
	origTerminate := terminate
	origArgs := os.Args
	t.Cleanup(func() {
		executeCmd = origExec
		mapExitCode = origMap
		terminate = origTerminate
		os.Args = origArgs
	})

	executeCmd = func(_ context.Context, _ []string) error {
		return errors.New("boom")
	}
	mapExitCode = func(_ error) int { return 3 }

	gotCode := -1
	terminate = func(code int) { gotCode = code }

	os.Args = []string{"peak", "auth", "status"}
	main()

	if gotCode != 3 {
		t.Fatalf("terminate code = %d, want 3", gotCode)
	}
}
