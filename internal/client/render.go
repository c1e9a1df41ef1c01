package client

import (
	"fmt"
	"io"
	"strings"
)

// Render writes v to w as plain text.
func Render(w io.Writer, v View) error {
	var b strings.Builder

	switch v.Phase {
	case PhaseEmpty:
		b.WriteString("Plant Identifier\n")
		b.WriteString("Upload a photo to identify your plant\n")

	case PhaseLoading:
		b.WriteString("Identifying Your Plant\n")
		b.WriteString("Analyzing your photo to find the best matches...\n")
		for _, step := range []string{"Uploading image", "Searching database", "Filtering matches"} {
			fmt.Fprintf(&b, "  * %s\n", step)
		}

	case PhaseError:
		fmt.Fprintf(&b, "Error: %s\n", v.Error)

	case PhaseResult:
		if v.NoMatches() {
			fmt.Fprintf(&b, "%s\n", v.Notice)
			break
		}
		b.WriteString("Here what we found\n")
		if len(v.PossibleNames) > 0 {
			b.WriteString("\nPossible Names\n")
			for _, name := range v.PossibleNames {
				fmt.Fprintf(&b, "  - %s", name.Name)
				if name.Thumbnail != "" {
					fmt.Fprintf(&b, " [%s]", name.Thumbnail)
				}
				b.WriteString("\n")
			}
		}
		if len(v.Matches) > 0 {
			b.WriteString("\nOther Matches\n")
			for i, match := range v.Matches {
				fmt.Fprintf(&b, "  %d. %s\n", i+1, match.Title)
				if match.Link != "" {
					fmt.Fprintf(&b, "     View: %s\n", match.Link)
				}
				if match.Thumbnail != "" {
					fmt.Fprintf(&b, "     Thumbnail: %s\n", match.Thumbnail)
				}
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
