// Package urls provides centralized constants for the documentation URLs
// shown in airscout output.
//
// Usage:
//
//	import "github.com/muurk/airscout/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.AirRohrGuide)
package urls
