package model

import "time"

// nowFunc is overridable in tests so timestamp-bearing constructors are
// deterministic.
var nowFunc = time.Now
