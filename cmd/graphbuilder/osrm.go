package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// osrmClient queries an OSRM HTTP server for road distances between two
// coordinates.
type osrmClient struct {
	endpoint string
	client   *http.Client
}

func newOSRMClient(endpoint string) *osrmClient {
	return &osrmClient{endpoint: endpoint, client: &http.Client{Timeout: 2 * time.Second}}
}

// RouteKm returns the driving distance in kilometres between two points.
func (o *osrmClient) RouteKm(lat1, lon1, lat2, lon2 float64) (float64, error) {
	// /route/v1/driving/{lon1},{lat1};{lon2},{lat2}?overview=false
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", o.endpoint, lon1, lat1, lon2, lat2)
	resp, err := o.client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"` // metres
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return 0, fmt.Errorf("osrm no route: %v", out.Code)
	}
	return out.Routes[0].Distance / 1000, nil
}
