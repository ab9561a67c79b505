package ml

// HeartFeatures is one patient's clinical measurements, in the column layout
// the scaler and model were fitted against.
type HeartFeatures struct {
	Age      int     `json:"age"`
	Sex      int     `json:"sex"`
	CP       int     `json:"cp"`
	Trestbps int     `json:"trestbps"`
	Chol     int     `json:"chol"`
	Fbs      int     `json:"fbs"`
	Restecg  int     `json:"restecg"`
	Thalach  int     `json:"thalach"`
	Exang    int     `json:"exang"`
	Oldpeak  float64 `json:"oldpeak"`
	Slope    int     `json:"slope"`
	CA       int     `json:"ca"`
	Thal     int     `json:"thal"`
}

// NumFeatures is the width of every vector handed to the scaler and the model.
const NumFeatures = 13

// FeatureVector assembles the measurements in the fitted column order.
func FeatureVector(feature HeartFeatures) []float64 {
	return []float64{
		float64(feature.Age),
		float64(feature.Sex),
		float64(feature.CP),
		float64(feature.Trestbps),
		float64(feature.Chol),
		float64(feature.Fbs),
		float64(feature.Restecg),
		float64(feature.Thalach),
		float64(feature.Exang),
		feature.Oldpeak,
		float64(feature.Slope),
		float64(feature.CA),
		float64(feature.Thal),
	}
}

// FeatureNames returns the JSON keys in the same order as FeatureVector.
func FeatureNames() []string {
	return []string{
		"age",
		"sex",
		"cp",
		"trestbps",
		"chol",
		"fbs",
		"restecg",
		"thalach",
		"exang",
		"oldpeak",
		"slope",
		"ca",
		"thal",
	}
}

// IsIntegerFeature reports whether the named column only admits whole numbers.
func IsIntegerFeature(name string) bool {
	return name != "oldpeak"
}
