package service

// Policy decides when a collection also condemns old regions.
type Policy struct {
	// MixedTrigger is the old space occupancy, as a fraction of its
	// budget, above which a collection becomes mixed.
	MixedTrigger float64
	// MixedRegions caps the old regions condemned by one mixed collection.
	MixedRegions int
}

func DefaultPolicy() Policy {
	return Policy{
		MixedTrigger: 0.6,
		MixedRegions: 8,
	}
}

// MutatorConfig shapes the synthetic allocation load.
type MutatorConfig struct {
	Seed     uint64
	MaxRoots int
	// LinkRate is the chance that a new object gets stored into a rooted one.
	LinkRate float64
	// ArrayEvery, WeakEvery and OldEvery make every n-th allocation an
	// array, a weakly held object or a direct old-space object. Zero
	// disables the kind.
	ArrayEvery int
	WeakEvery  int
	OldEvery   int
}

func DefaultMutatorConfig() MutatorConfig {
	return MutatorConfig{
		Seed:       1,
		MaxRoots:   256,
		LinkRate:   0.5,
		ArrayEvery: 16,
		WeakEvery:  64,
		OldEvery:   512,
	}
}
