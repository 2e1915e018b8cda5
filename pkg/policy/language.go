package policy

import (
	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/replan/pkg/history"
)

// languagesMatch reports whether every detectable touched file belongs
// to the allowed language set. Detection is by filename only; change
// sets carry content hashes, not content. Files enry cannot place
// (no extension, unknown extension) are ignored. At least one file
// must be detectable, otherwise the predicate does not match.
func languagesMatch(allowed map[string]struct{}, changes history.ChangeSet) bool {
	detected := 0

	for _, change := range changes {
		lang := enry.GetLanguage(change.Path, nil)
		if lang == enry.OtherLanguage || lang == "" {
			continue
		}

		detected++

		if _, ok := allowed[lang]; !ok {
			return false
		}
	}

	return detected > 0
}
