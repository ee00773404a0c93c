package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/cruft-ninja/script-runner/internal/doctor"
	"github.com/cruft-ninja/script-runner/internal/output"
	"github.com/cruft-ninja/script-runner/internal/terminal"
	"github.com/cruft-ninja/script-runner/internal/testutil"
)

func renderDoctorOutput(results []doctor.Result) string {
	var buf bytes.Buffer

	term := &terminal.Info{IsTTY: false, NoColor: true, Width: 80, Height: 24}
	renderDoctor(output.NewWriter(&buf, &buf, term), results)

	return buf.String()
}

func TestDoctorOutput_AllPass_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Interpreter", Status: doctor.StatusPass, Message: "bash at /usr/bin/bash"},
		{Name: "Elevation", Status: doctor.StatusPass, Message: "sudo grant cached"},
		{Name: "Script catalog", Status: doctor.StatusPass, Message: "12 scripts in /etc/scriptrunner/scripts.yaml"},
		{Name: "Transcripts", Status: doctor.StatusPass, Message: "/home/op/.local/state/scriptrunner/history"},
	}

	testutil.AssertGolden(t, renderDoctorOutput(results), "doctor_all_pass.golden")
}

func TestDoctorOutput_Mixed_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Interpreter", Status: doctor.StatusPass, Message: "bash at /usr/bin/bash"},
		{Name: "Elevation", Status: doctor.StatusWarn, Message: "No cached sudo grant", Detail: "Elevated scripts will ask for the password"},
		{Name: "Script catalog", Status: doctor.StatusFail, Message: "Cannot parse scripts.json", Detail: "invalid character '}' looking for beginning of value"},
		{Name: "Host", Status: doctor.StatusPass, Message: "8 cores, 42% memory used"},
	}

	testutil.AssertGolden(t, renderDoctorOutput(results), "doctor_mixed.golden")
}

func TestRunDoctorChecks_SpinnerOutcome(t *testing.T) {
	tests := []struct {
		name   string
		status doctor.Status
		want   string
	}{
		{"all pass", doctor.StatusPass, "Running checks... done\n"},
		{"warning", doctor.StatusWarn, "Running checks... warning\n"},
		{"failure", doctor.StatusFail, "Running checks... failed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			term := &terminal.Info{IsTTY: false, NoColor: true, Width: 80, Height: 24}
			out := output.NewWriter(&buf, &buf, term)

			r := doctor.NewRunner().
				Add("Interpreter", func(context.Context) doctor.Result {
					return doctor.Result{Status: doctor.StatusPass}
				}).
				Add("Script catalog", func(context.Context) doctor.Result {
					return doctor.Result{Status: tt.status}
				})

			results := runDoctorChecks(context.Background(), out, r)

			if len(results) != 2 || results[1].Name != "Script catalog" {
				t.Fatalf("results = %+v", results)
			}

			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
