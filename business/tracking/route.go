package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

// CoordinateLookup resolves a place name to its location. A missing place returns false and no error
type CoordinateLookup interface {
	LookupCoordinate(ctx context.Context, name string) (geo.Point, bool, error)
}

//LayeredLookup tries each CoordinateLookup in order and returns the first match.
//a lookup that fails is skipped and the last error is returned only when no other lookup matched
type LayeredLookup []CoordinateLookup

func (l LayeredLookup) LookupCoordinate(ctx context.Context, name string) (geo.Point, bool, error) {
	var lastErr error
	for _, lookup := range l {
		point, found, err := lookup.LookupCoordinate(ctx, name)
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			return point, true, nil
		}
	}
	return geo.Point{}, false, lastErr
}

// Place is a named point on a route, Location is nil when the name couldn't be resolved
type Place struct {
	Name     string     `json:"name"`
	Location *geo.Point `json:"location"`
}

// Route is the origin, destination and ordered intermediate stops of a trip
type Route struct {
	Origin      Place   `json:"origin"`
	Destination Place   `json:"destination"`
	Stops       []Place `json:"stops"`
}

// ResolvedStops returns the stops that have a location
func (r *Route) ResolvedStops() []Place {
	results := make([]Place, 0, len(r.Stops))
	for _, stop := range r.Stops {
		if stop.Location != nil {
			results = append(results, stop)
		}
	}
	return results
}

//ParseStopList decodes the serialized stop list stored on a trip, a json array of stop names.
//blank names are dropped, an empty string is an empty list
func ParseStopList(serialized string) ([]string, error) {
	if len(strings.TrimSpace(serialized)) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(serialized), &names); err != nil {
		return nil, fmt.Errorf("malformed stop list %q: %w", serialized, err)
	}
	results := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); len(name) > 0 {
			results = append(results, name)
		}
	}
	return results, nil
}

//ResolveRoute builds a Route by resolving origin, destination and the serialized stop list with lookup.
//a malformed stop list is logged and the route is treated as direct from origin to destination.
//lookup failures are logged and treated as unresolved places, ResolveRoute itself never fails
func ResolveRoute(ctx context.Context,
	log *log.Logger,
	lookup CoordinateLookup,
	origin string,
	destination string,
	serializedStops string) Route {

	route := Route{
		Origin:      resolvePlace(ctx, log, lookup, origin),
		Destination: resolvePlace(ctx, log, lookup, destination),
		Stops:       make([]Place, 0),
	}

	stopNames, err := ParseStopList(serializedStops)
	if err != nil {
		log.Printf("treating route %s -> %s as direct. error: %v", origin, destination, err)
		return route
	}
	for _, name := range stopNames {
		route.Stops = append(route.Stops, resolvePlace(ctx, log, lookup, name))
	}
	return route
}

func resolvePlace(ctx context.Context, log *log.Logger, lookup CoordinateLookup, name string) Place {
	place := Place{Name: name}
	if len(strings.TrimSpace(name)) == 0 {
		return place
	}
	point, found, err := lookup.LookupCoordinate(ctx, name)
	if err != nil {
		log.Printf("unable to look up coordinates for %q, error: %v", name, err)
		return place
	}
	if !found {
		log.Printf("no coordinates for %q", name)
		return place
	}
	place.Location = &point
	return place
}
