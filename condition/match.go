package condition

import (
	"github.com/dlclark/regexp2"

	"github.com/use-agent/webexporter/jsonpath"
)

func matches(re *regexp2.Regexp, v any) bool {
	if re == nil {
		return false
	}
	ok, err := re.MatchString(jsonpath.Stringify(v))
	return err == nil && ok
}
