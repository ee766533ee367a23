package fipe

// Upstream vehicle categories
const (
	CategoryCars        = "cars"
	CategoryMotorcycles = "motorcycles"
	CategoryTrucks      = "trucks"
)

var categories = map[string]string{
	"carro":    CategoryCars,
	"moto":     CategoryMotorcycles,
	"caminhao": CategoryTrucks,
}

// ResolveCategory maps a vehicle type code to its upstream category.
// Unknown codes fall back to cars.
func ResolveCategory(vehicleType string) string {
	if category, ok := categories[vehicleType]; ok {
		return category
	}
	return CategoryCars
}
