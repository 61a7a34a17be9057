package config

// ModuleWeights orders modules in help output; unknown modules sort last.
var ModuleWeights = map[string]int{
	"core":       0,
	"statistics": 10,
	"packages":   20,
	"modules":    50,
}

// ModuleWeight returns the sort weight of a module name.
func ModuleWeight(name string) int {
	if w, ok := ModuleWeights[name]; ok {
		return w
	}
	return 100
}
