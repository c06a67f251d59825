package drivers

import (
	// Register the Genji driver when a binary explicitly opts into the
	// drivers package. Tests can skip importing this package to stay fast.
	_ "github.com/genjidb/genji/driver"
)
