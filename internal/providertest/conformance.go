// Package providertest provides platform-agnostic conformance testing for
// location providers. Any provider wired into the registry must pass this
// suite.
package providertest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/device-services/dsc/internal/provider"
)

// Expectations defines the expected provider behavior for conformance testing.
type Expectations struct {
	// Bounding box the provider's fixes must fall into
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64

	// Whether high-accuracy acquisition must tighten the reported accuracy
	HighAccuracyTightens bool
}

// ConformanceResult represents the result of a single conformance check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance report.
type ConformanceReport struct {
	ProviderName  string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance suite for a provider.
func RunConformance(t *testing.T, newProvider func() provider.ILocationProvider, exp Expectations) {
	startTime := time.Now()

	report := &ConformanceReport{
		ProviderName:  "Unknown Provider",
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runAcquisitionTests(t, newProvider, exp, report)
	runCapabilitiesTests(t, newProvider, report)
	runCancellationTests(t, newProvider, report)
	runRepeatabilityTests(t, newProvider, exp, report)

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Provider conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// runAcquisitionTests checks basic one-shot acquisition behavior.
func runAcquisitionTests(t *testing.T, newProvider func() provider.ILocationProvider, exp Expectations, report *ConformanceReport) {
	p := newProvider()
	ctx := context.Background()

	result := ConformanceResult{
		TestName: "Acquisition_Basic",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()

	fix, err := p.CurrentPosition(ctx, provider.AcquireOptions{})
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Error = fmt.Sprintf("CurrentPosition failed: %v", err)
	case fix == nil:
		result.Error = "CurrentPosition returned nil fix"
	case !fix.Known:
		result.Error = "CurrentPosition returned a fix with Known=false"
	case fix.Latitude < exp.MinLatitude || fix.Latitude > exp.MaxLatitude:
		result.Error = fmt.Sprintf("latitude %f outside expected bounds", fix.Latitude)
	case fix.Longitude < exp.MinLongitude || fix.Longitude > exp.MaxLongitude:
		result.Error = fmt.Sprintf("longitude %f outside expected bounds", fix.Longitude)
	default:
		result.Passed = true
		result.Details["latitude"] = fix.Latitude
		result.Details["longitude"] = fix.Longitude
		result.Details["accuracy"] = fix.Accuracy
	}

	report.addResult(result)

	if exp.HighAccuracyTightens {
		result = ConformanceResult{
			TestName: "Acquisition_HighAccuracy",
			Details:  make(map[string]interface{}),
		}
		start = time.Now()

		coarse, errCoarse := p.CurrentPosition(ctx, provider.AcquireOptions{})
		fine, errFine := p.CurrentPosition(ctx, provider.AcquireOptions{HighAccuracy: true})
		result.Duration = time.Since(start)

		switch {
		case errCoarse != nil:
			result.Error = fmt.Sprintf("coarse acquisition failed: %v", errCoarse)
		case errFine != nil:
			result.Error = fmt.Sprintf("high-accuracy acquisition failed: %v", errFine)
		case fine.Accuracy > coarse.Accuracy:
			result.Error = fmt.Sprintf("high accuracy did not tighten: %.1f > %.1f", fine.Accuracy, coarse.Accuracy)
		default:
			result.Passed = true
			result.Details["coarseAccuracy"] = coarse.Accuracy
			result.Details["fineAccuracy"] = fine.Accuracy
		}

		report.addResult(result)
	}
}

// runCapabilitiesTests checks the capabilities contract.
func runCapabilitiesTests(t *testing.T, newProvider func() provider.ILocationProvider, report *ConformanceReport) {
	p := newProvider()

	result := ConformanceResult{
		TestName: "Capabilities_Basic",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()

	caps, err := p.Capabilities(context.Background())
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Error = fmt.Sprintf("Capabilities failed: %v", err)
	case caps == nil:
		result.Error = "Capabilities returned nil"
	default:
		result.Passed = true
		result.Details["typicalAccuracyM"] = caps.TypicalAccuracyM
	}

	report.addResult(result)
}

// runCancellationTests checks that cancelled contexts abort acquisition.
func runCancellationTests(t *testing.T, newProvider func() provider.ILocationProvider, report *ConformanceReport) {
	p := newProvider()

	result := ConformanceResult{
		TestName: "Cancellation_ContextCancelled",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CurrentPosition(cancelledCtx, provider.AcquireOptions{})
	result.Duration = time.Since(start)

	if err == nil {
		result.Error = "CurrentPosition with cancelled context should have failed"
	} else {
		result.Passed = true
		result.Details["error"] = err.Error()
	}

	report.addResult(result)
}

// runRepeatabilityTests checks that back-to-back acquisitions keep working.
func runRepeatabilityTests(t *testing.T, newProvider func() provider.ILocationProvider, exp Expectations, report *ConformanceReport) {
	p := newProvider()
	ctx := context.Background()

	result := ConformanceResult{
		TestName: "Repeatability_BackToBack",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()

	var lastErr error
	acquired := 0
	for i := 0; i < 3; i++ {
		if _, err := p.CurrentPosition(ctx, provider.AcquireOptions{}); err != nil {
			lastErr = err
			break
		}
		acquired++
	}
	result.Duration = time.Since(start)

	if lastErr != nil {
		result.Error = fmt.Sprintf("acquisition %d failed: %v", acquired+1, lastErr)
	} else {
		result.Passed = true
		result.Details["acquired"] = acquired
	}

	report.addResult(result)
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("PROVIDER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Provider: %s", report.ProviderName)
	t.Logf("Total Tests: %d", report.TotalTests)
	t.Logf("Passed: %d", report.PassedTests)
	t.Logf("Failed: %d", report.FailedTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := result.Error
		if details == "" && len(result.Details) > 0 {
			var detailParts []string
			for k, v := range result.Details {
				detailParts = append(detailParts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(detailParts, ", ")
		}

		t.Logf("%-32s %-8s %-12s %-s", result.TestName, status, result.Duration.String(), details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
