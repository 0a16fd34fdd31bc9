package query

// Projection replaces the instances returned by a query with values derived
// from them.
type Projection interface {
	projection()
}

// Aggregate is a projection reducing every result to one value.
type Aggregate interface {
	Projection
	aggregate()
}

// IdProjection projects the identifier.
type IdProjection struct{}

// PropertyProjection projects the value of a property.
type PropertyProjection struct{ Property string }

// DistinctProjection projects the distinct values of a property.
type DistinctProjection struct{ Property string }

// CountProjection counts the results.
type CountProjection struct{}

// CountDistinctProjection counts the distinct values of a property.
type CountDistinctProjection struct{ Property string }

// SumProjection sums a numeric property.
type SumProjection struct{ Property string }

// MinProjection returns the smallest value of a property.
type MinProjection struct{ Property string }

// MaxProjection returns the greatest value of a property.
type MaxProjection struct{ Property string }

// AvgProjection averages a numeric property.
type AvgProjection struct{ Property string }

func (IdProjection) projection()            {}
func (PropertyProjection) projection()      {}
func (DistinctProjection) projection()      {}
func (CountProjection) projection()         {}
func (CountDistinctProjection) projection() {}
func (SumProjection) projection()           {}
func (MinProjection) projection()           {}
func (MaxProjection) projection()           {}
func (AvgProjection) projection()           {}

func (CountProjection) aggregate()         {}
func (CountDistinctProjection) aggregate() {}
func (SumProjection) aggregate()           {}
func (MinProjection) aggregate()           {}
func (MaxProjection) aggregate()           {}
func (AvgProjection) aggregate()           {}

// Id returns an [IdProjection].
func Id() IdProjection { return IdProjection{} }

// Property returns a [PropertyProjection].
func Property(name string) PropertyProjection { return PropertyProjection{Property: name} }

// Distinct returns a [DistinctProjection].
func Distinct(name string) DistinctProjection { return DistinctProjection{Property: name} }

// Count returns a [CountProjection].
func Count() CountProjection { return CountProjection{} }

// CountDistinct returns a [CountDistinctProjection].
func CountDistinct(name string) CountDistinctProjection {
	return CountDistinctProjection{Property: name}
}

// Sum returns a [SumProjection].
func Sum(name string) SumProjection { return SumProjection{Property: name} }

// Min returns a [MinProjection].
func Min(name string) MinProjection { return MinProjection{Property: name} }

// Max returns a [MaxProjection].
func Max(name string) MaxProjection { return MaxProjection{Property: name} }

// Avg returns an [AvgProjection].
func Avg(name string) AvgProjection { return AvgProjection{Property: name} }

// Order sorts results by a property.
type Order struct {
	Property   string
	Descending bool
}

// Asc returns an ascending [Order].
func Asc(property string) Order { return Order{Property: property} }

// Desc returns a descending [Order].
func Desc(property string) Order { return Order{Property: property, Descending: true} }
