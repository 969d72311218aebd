package stage

// package runs the executable packager. It declares the bundle and a
// manifest describing discoverable entry points.
func init() {
	Register(KindPackage, Kind{
		Validate: func(s Spec) error {
			return firstErr(requireCommand(s), requireOutputs(s, 1, -1), requireProduces(s))
		},
		New: newToolStage,
	})
}
