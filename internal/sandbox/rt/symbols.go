package rt

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
)

// ImportPath is what candidates import to reach this package.
const ImportPath = "archetype/rt"

// Symbols exports the runtime types to the interpreter.
var Symbols = interp.Exports{
	ImportPath + "/rt": {
		"Runtime": reflect.ValueOf((*Runtime)(nil)),
		"Agent":   reflect.ValueOf((*Agent)(nil)),
		"Meeting": reflect.ValueOf((*Meeting)(nil)),
	},
}
