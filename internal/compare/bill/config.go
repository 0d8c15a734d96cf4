package bill

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadTolerances reads tolerance knobs from a YAML file. Missing keys fall
// back to the defaults.
func LoadTolerances(path string) (Tolerances, error) {
	tol := DefaultTolerances()
	data, err := os.ReadFile(path)
	if err != nil {
		return tol, eris.Wrapf(err, "bill: read tolerances %s", path)
	}
	if err := yaml.Unmarshal(data, &tol); err != nil {
		return tol, eris.Wrapf(err, "bill: parse tolerances %s", path)
	}
	return tol, nil
}
