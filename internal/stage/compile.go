package stage

// compile runs the static-asset compiler. Its single output is the compiled
// asset directory.
func init() {
	Register(KindCompile, Kind{
		Validate: func(s Spec) error {
			return firstErr(requireCommand(s), requireOutputs(s, 1, 1), requireProduces(s))
		},
		New: newToolStage,
	})
}
