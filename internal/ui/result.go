package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/discovery"
	"github.com/muurk/airscout/internal/urls"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType // Success, failure, or warning
	Title           string     // e.g., "airRohr-1234567"
	Details         []Param    // Key-value details, in display order
	Error           error      // Error (for failure results)
	Troubleshooting []string   // Troubleshooting tips (for failure results)
	Width           int        // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Param) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Param) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Param{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	switch r.Type {
	case ResultFailure:
		return r.renderFailure(width)
	case ResultWarning:
		title := lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
			Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
		return ResultBoxStyle(width, WarningColor).Render(r.withDetails(title))
	default:
		title := SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		return ResultBoxStyle(width, SuccessColor).Render(r.withDetails(title))
	}
}

func (r *Result) withDetails(title string) string {
	lines := []string{"", title, ""}
	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func (r *Result) renderFailure(width int) string {
	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)),
		"",
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		tips := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range r.Troubleshooting {
			tips = append(tips, TroubleshootingItemStyle.Render("  • "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(tips, "\n")), "")
	}

	return ResultBoxStyle(width, ErrorColor).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// Troubleshooting returns hints for a failed discovery, resolve, or fetch
func Troubleshooting(err error) []string {
	var fetchErr *airrohr.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Type {
		case airrohr.ErrTypeTimeout:
			return []string{
				"Check the sensor is powered and joined to WiFi",
				"Weak WiFi signal makes the node slow to answer",
				"Try a longer --fetch-timeout",
				"Setup guide: " + urls.AirRohrGuide,
			}
		case airrohr.ErrTypeConnectionRefused:
			return []string{
				"The node may be rebooting; retry in a few seconds",
				"Check nothing else is using this address",
			}
		case airrohr.ErrTypeDNS:
			return []string{
				"Use the IP address shown by 'airscout scan'",
				"Your resolver may not support .local names",
			}
		case airrohr.ErrTypeHTTP:
			return []string{
				"Open the node's web interface and check it is an airRohr",
				"Firmware older than NRZ-2018 may not serve /data.json",
				"Firmware notes: " + urls.Firmware,
			}
		case airrohr.ErrTypeParse:
			return []string{
				"The device answered but not with sensor data",
				"Make sure the address points at an airRohr node",
			}
		default:
			return []string{
				"Check you are on the same network as the sensor",
				"Verify the address with 'airscout scan'",
			}
		}
	}

	var discErr *discovery.DiscoveryError
	var resolveErr *discovery.ResolveError
	if errors.As(err, &discErr) || errors.As(err, &resolveErr) {
		return []string{
			"mDNS needs multicast on the local interface",
			"Allow UDP port 5353 through your firewall",
			"Sensors on a guest or isolated WiFi are not visible",
		}
	}
	return nil
}
