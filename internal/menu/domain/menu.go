package domain

import "strings"

type MenuItem struct {
	ID         string
	Name       string
	Category   string
	PriceCents int64
}

type Bucket string

const (
	BucketDrinks Bucket = "drinks"
	BucketShisha Bucket = "shisha"
	BucketOther  Bucket = "other"
)

// Fixed category-name sets deciding which operations board an item shows up
// on. Categories outside both sets fall into the kitchen bucket.
var (
	drinkCategories = map[string]struct{}{
		"drinks": {}, "tea": {}, "coffee": {}, "cocktails": {},
		"soft drinks": {}, "juices": {}, "beer": {}, "wine": {},
	}
	shishaCategories = map[string]struct{}{
		"shisha": {}, "hookah": {}, "premium shisha": {}, "fruit shisha": {},
	}
)

func (m MenuItem) Bucket() Bucket {
	c := strings.ToLower(strings.TrimSpace(m.Category))
	if _, ok := drinkCategories[c]; ok {
		return BucketDrinks
	}
	if _, ok := shishaCategories[c]; ok {
		return BucketShisha
	}
	return BucketOther
}

// SplitBuckets groups a catalog by bucket, preserving input order.
func SplitBuckets(items []MenuItem) map[Bucket][]MenuItem {
	out := make(map[Bucket][]MenuItem)
	for _, m := range items {
		b := m.Bucket()
		out[b] = append(out[b], m)
	}
	return out
}
