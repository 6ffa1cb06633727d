package participant

import (
	"github.com/dd0wney/cluso-petasos/pkg/cluster"
	"github.com/dd0wney/cluso-petasos/pkg/parcel"
)

// Endpoints derives one endpoint summary per addressable processing plant
// from a set of registrations.
func Endpoints(regs []Registration) []cluster.EndpointSummary {
	seen := make(map[string]struct{})
	var out []cluster.EndpointSummary
	for _, reg := range regs {
		p := reg.Participant
		if p.Kind == KindRemoteSubscriber || reg.Status == StatusDeregistered {
			continue
		}
		plant := p.ProcessingPlant
		if plant == "" {
			plant = p.Name
		}
		if p.Address == "" {
			continue
		}
		if _, ok := seen[plant]; ok {
			continue
		}
		seen[plant] = struct{}{}
		service := p.Service
		if service == "" {
			service = parcel.ServiceOf(plant)
		}
		out = append(out, cluster.EndpointSummary{
			Name:        plant,
			Address:     p.Address,
			ServiceName: service,
		})
	}
	return out
}
