package cli

// Load
type loadParams struct {
	Keys    []string
	Wait    bool
	Release bool
}

func bindLoad(inv *Invocation) *loadParams {
	return &loadParams{
		Keys:    inv.Lists["keys"],
		Wait:    inv.Bool("wait"),
		Release: inv.Bool("release"),
	}
}
