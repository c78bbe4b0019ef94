package all

import (
	// Import all the converters so they register themselves
	_ "github.com/darianmavgo/mkolist/converters/csv"
	_ "github.com/darianmavgo/mkolist/converters/excel"
	_ "github.com/darianmavgo/mkolist/converters/html"
)
