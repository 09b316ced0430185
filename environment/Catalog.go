package environment

import (
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Information describes one entry of the information catalog: the type
// tag, the data size in bytes, and the interval in seconds at which the
// data source refreshes that type.
type Information struct {
	Type           int
	DataSize       float64
	UpdateInterval int
}

// InformationList is the static catalog of information types available
// in an episode. It is immutable once constructed and queried by type.
type InformationList struct {
	number       int
	informations []Information
	byType       map[int]Information
}

// NewInformationList creates and returns a new InformationList. Data
// sizes are drawn uniformly from [dataSizeLowBound, dataSizeUpBound)
// and update intervals uniformly from [updateIntervalLowBound,
// updateIntervalUpBound). Type tags are a seeded permutation of
// 0..informationNumber-1.
func NewInformationList(informationNumber int, seed uint64,
	dataSizeLowBound, dataSizeUpBound float64,
	updateIntervalLowBound, updateIntervalUpBound int) (*InformationList,
	error) {
	if informationNumber <= 0 {
		return nil, fmt.Errorf("newinformationlist: information number " +
			"must be > 0")
	}
	if dataSizeLowBound >= dataSizeUpBound {
		return nil, fmt.Errorf("newinformationlist: invalid data size "+
			"bounds [%v, %v)", dataSizeLowBound, dataSizeUpBound)
	}
	if updateIntervalLowBound >= updateIntervalUpBound ||
		updateIntervalLowBound < 1 {
		return nil, fmt.Errorf("newinformationlist: invalid update interval "+
			"bounds [%v, %v)", updateIntervalLowBound, updateIntervalUpBound)
	}

	src := rand.NewSource(seed)
	rng := rand.New(src)
	sizes := distuv.Uniform{
		Min: dataSizeLowBound,
		Max: dataSizeUpBound,
		Src: src,
	}

	types := rng.Perm(informationNumber)
	informations := make([]Information, informationNumber)
	byType := make(map[int]Information, informationNumber)
	for i := 0; i < informationNumber; i++ {
		interval := updateIntervalLowBound +
			rng.Intn(updateIntervalUpBound-updateIntervalLowBound)
		informations[i] = Information{
			Type:           types[i],
			DataSize:       sizes.Rand(),
			UpdateInterval: interval,
		}
		byType[types[i]] = informations[i]
	}

	return &InformationList{
		number:       informationNumber,
		informations: informations,
		byType:       byType,
	}, nil
}

// Number returns the number of information types in the catalog
func (l *InformationList) Number() int {
	return l.number
}

// Informations returns the catalog entries in slot order
func (l *InformationList) Informations() []Information {
	return l.informations
}

// DataSizeByType returns the data size in bytes of an information type
func (l *InformationList) DataSizeByType(t int) (float64, error) {
	info, ok := l.byType[t]
	if !ok {
		return 0, fmt.Errorf("datasizebytype: no information of type %v", t)
	}
	return info.DataSize, nil
}

// UpdateIntervalByType returns the source update interval in seconds of
// an information type
func (l *InformationList) UpdateIntervalByType(t int) (int, error) {
	info, ok := l.byType[t]
	if !ok {
		return 0, fmt.Errorf("updateintervalbytype: no information of "+
			"type %v", t)
	}
	return info.UpdateInterval, nil
}

// ApplicationList maps edge applications to the views they consume.
// Only one view per application is currently supported, in which case
// the mapping is a seeded permutation of views.
type ApplicationList struct {
	number       int
	applications []int
}

// NewApplicationList creates and returns a new ApplicationList
func NewApplicationList(applicationNumber, viewNumber,
	viewsPerApplication int, seed uint64) (*ApplicationList, error) {
	if viewsPerApplication != 1 {
		return nil, fmt.Errorf("newapplicationlist: unsupported views per "+
			"application %v, only 1 is supported", viewsPerApplication)
	}
	// With one view per application the two populations must match.
	if applicationNumber != viewNumber {
		applicationNumber = viewNumber
	}

	rng := rand.New(rand.NewSource(seed))
	return &ApplicationList{
		number:       applicationNumber,
		applications: rng.Perm(applicationNumber),
	}, nil
}

// Number returns the number of applications
func (l *ApplicationList) Number() int {
	return l.number
}

// Applications returns the view index consumed by each application
func (l *ApplicationList) Applications() []int {
	return l.applications
}

// ViewList holds, per view, the set of information types the view
// aggregates. Each view draws a seeded random number of types without
// replacement from the catalog.
type ViewList struct {
	number int
	views  [][]int
}

// NewViewList creates and returns a new ViewList. One seed is required
// per view so that individual views can be reproduced independently.
func NewViewList(viewNumber, informationNumber, maxInformationNumber int,
	seeds []uint64) (*ViewList, error) {
	if maxInformationNumber > informationNumber {
		return nil, fmt.Errorf("newviewlist: max information number %v "+
			"must be <= information number %v", maxInformationNumber,
			informationNumber)
	}
	if maxInformationNumber < 2 {
		return nil, fmt.Errorf("newviewlist: max information number must " +
			"be >= 2")
	}
	if len(seeds) != viewNumber {
		return nil, fmt.Errorf("newviewlist: invalid number of seeds "+
			"\n\twant(%v)\n\thave(%v)", viewNumber, len(seeds))
	}

	views := make([][]int, viewNumber)
	for i := 0; i < viewNumber; i++ {
		rng := rand.New(rand.NewSource(seeds[i]))
		size := 1 + rng.Intn(maxInformationNumber-1)
		views[i] = rng.Perm(informationNumber)[:size]
	}

	return &ViewList{number: viewNumber, views: views}, nil
}

// Number returns the number of views
func (l *ViewList) Number() int {
	return l.number
}

// Views returns the information types required by each view
func (l *ViewList) Views() [][]int {
	return l.views
}

// RequiredInformation returns the union of information types required
// by the given views
func (l *ViewList) RequiredInformation(views []int) []int {
	required := lo.FlatMap(views, func(v int, _ int) []int {
		if v < 0 || v >= l.number {
			return nil
		}
		return l.views[v]
	})
	return lo.Uniq(required)
}
