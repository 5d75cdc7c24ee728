package internal

func registerUtilFuncs(r *FuncRegistry) {
	// default(x, fallback) returns fallback when x is nil or empty
	fixed(r, FuncNameDefault, 2, func(args []any) (any, error) {
		if isEmpty(args[0]) {
			return args[1], nil
		}
		return args[0], nil
	})

	// coalesce(args...) returns the first non-empty argument
	r.MustRegister(&Func{
		Name:    FuncNameCoalesce,
		MinArgs: 1,
		MaxArgs: -1,
		Fn: func(args []any) (any, error) {
			for _, arg := range args {
				if !isEmpty(arg) {
					return arg, nil
				}
			}
			return nil, nil
		},
	})
}
