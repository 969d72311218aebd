package stage

func init() {
	Register(KindCommand, Kind{
		Validate: func(s Spec) error {
			return firstErr(requireCommand(s), requireProduces(s))
		},
		New: newToolStage,
	})
}
