package app

import (
	"fmt"
	"strings"
)

// readme is the content of the initial commit. It depends only on the
// group's categories and names so rebuilds produce the same commit hash.
func (s *Service) readme(g repoGroup) string {
	var b strings.Builder

	title := s.categoryName(g.categories[0])
	if len(g.categories) > 1 {
		title = "North Dakota Court Rules"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if len(g.categories) == 1 {
		fmt.Fprintf(&b, "This repository contains the %s with full version history.\n\n", title)
		b.WriteString("Each rule is stored as a separate markdown file. Git history tracks how each rule\n")
	} else {
		b.WriteString("This repository contains the following rule sets with full version history:\n\n")
		for _, c := range g.categories {
			fmt.Fprintf(&b, "- `%s/`: %s\n", c, s.categoryName(c))
		}
		b.WriteString("\nEach rule is stored as a separate markdown file under its rule set. Git history tracks how each rule\n")
	}
	b.WriteString("has changed over time, with commit dates matching the effective dates of each version.\n\n")

	example := s.opts.Layout.Path(exampleDocument(g.categories[0]))
	b.WriteString("## Usage\n\n```bash\n")
	fmt.Fprintf(&b, "# View history of a specific rule\ngit log --oneline %s\n\n", example)
	fmt.Fprintf(&b, "# See changes between versions\ngit log -p %s\n\n", example)
	fmt.Fprintf(&b, "# View a rule as it existed at a specific date\ngit log --before=\"2010-12-31\" --oneline %s\n", example)
	b.WriteString("```\n\n")

	b.WriteString("Every version commit carries `Document`, `Path`, `Effective-Date` and, for same-day\n")
	b.WriteString("revisions, `Version-Suffix` trailers.\n\n")
	b.WriteString("## Source\n\n")
	b.WriteString("All rules sourced from the [North Dakota Courts website](https://www.ndcourts.gov/legal-resources/rules).\n")
	return b.String()
}
