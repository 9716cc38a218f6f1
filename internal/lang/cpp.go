package lang

import (
	"github.com/smacker/go-tree-sitter/cpp"
)

func init() {
	// Headers are parsed as C++: the C++ grammar accepts the C struct
	// subset, and annotated headers are C++ in practice.
	Languages["cpp"] = &Language{
		Name: "cpp",
		Extensions: []string{
			".h", ".hh", ".hpp", ".hxx", ".h++",
			".cc", ".cpp", ".cxx", ".c++",
			".ipp", ".inl", ".tpp",
		},
		lang:    cpp.GetLanguage(),
		Classes: true,
	}
}
