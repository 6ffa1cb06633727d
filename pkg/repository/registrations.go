package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
)

// RegisterParticipant records reg, replacing any earlier registration of
// the same name.
func (s *Service) RegisterParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error) {
	return s.saveRegistration(ctx, reg, "registered")
}

// UpdateParticipant replaces a registration; unknown participants are
// registered.
func (s *Service) UpdateParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error) {
	return s.saveRegistration(ctx, reg, "updated")
}

func (s *Service) saveRegistration(ctx context.Context, reg participant.Registration, change string) (*participant.Registration, error) {
	stored := reg.Clone()
	if stored.Status == "" {
		stored.Status = participant.StatusRegistered
	}

	s.mu.Lock()
	if existing, ok := s.registrations[stored.Name()]; ok && !existing.RegistrationInstant.IsZero() {
		stored.RegistrationInstant = existing.RegistrationInstant
	}
	if stored.RegistrationInstant.IsZero() {
		stored.RegistrationInstant = s.now()
	}
	s.putRegistrationLocked(stored)
	s.mu.Unlock()

	if err := s.store.SaveRegistration(ctx, stored); err != nil {
		return nil, fmt.Errorf("persist registration %s: %w", stored.Name(), err)
	}
	s.events.Publish(pubsub.TopicParticipantChange, pubsub.ParticipantEvent{
		Name: stored.Name(), Change: change, Instant: s.now(),
	})
	s.logger.Debug("participant "+change,
		logging.Participant(stored.Name()),
		logging.Status(string(stored.Status)))

	out := stored.Clone()
	return &out, nil
}

// DeregisterParticipant forgets the participant and answers with its final
// registration marked deregistered. Unknown participants yield nil.
func (s *Service) DeregisterParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error) {
	s.mu.Lock()
	existing, ok := s.registrations[reg.Name()]
	if ok {
		s.dropRegistrationLocked(reg.Name())
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	if err := s.store.DeleteRegistration(ctx, reg.Name()); err != nil {
		return nil, fmt.Errorf("delete registration %s: %w", reg.Name(), err)
	}
	s.events.Publish(pubsub.TopicParticipantChange, pubsub.ParticipantEvent{
		Name: reg.Name(), Change: "deregistered", Instant: s.now(),
	})
	s.logger.Debug("participant deregistered", logging.Participant(reg.Name()))

	existing.Status = participant.StatusDeregistered
	return &existing, nil
}

// GetParticipantRegistration returns a copy of the named registration, or
// nil.
func (s *Service) GetParticipantRegistration(_ context.Context, name string) (*participant.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[name]
	if !ok {
		return nil, nil
	}
	out := reg.Clone()
	return &out, nil
}

// UpdateParticipantRegistrationSet replaces every registration belonging to
// plant with set and returns the stored result.
func (s *Service) UpdateParticipantRegistrationSet(ctx context.Context, plant string, set []participant.Registration) ([]participant.Registration, error) {
	var stale []string
	s.mu.Lock()
	keep := make(map[string]bool, len(set))
	for _, reg := range set {
		keep[reg.Name()] = true
	}
	for _, name := range s.order {
		reg := s.registrations[name]
		if belongsTo(reg, plant) && !keep[name] {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		s.dropRegistrationLocked(name)
	}
	s.mu.Unlock()

	for _, name := range stale {
		if err := s.store.DeleteRegistration(ctx, name); err != nil {
			return nil, fmt.Errorf("delete registration %s: %w", name, err)
		}
	}

	out := make([]participant.Registration, 0, len(set))
	for _, reg := range set {
		stored, err := s.saveRegistration(ctx, reg, "synchronised")
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	s.logger.Info("participant set synchronised",
		logging.String("plant", plant),
		logging.Count(len(out)),
		logging.Int("removed", len(stale)))
	return out, nil
}

// UpdateParticipantStatusSet applies the statuses of known participants and
// returns the statuses that were applied.
func (s *Service) UpdateParticipantStatusSet(ctx context.Context, plant string, set map[string]participant.Status) (map[string]participant.Status, error) {
	applied := make(map[string]participant.Status, len(set))
	var changed []participant.Registration

	s.mu.Lock()
	for name, status := range set {
		reg, ok := s.registrations[name]
		if !ok {
			continue
		}
		reg.Status = status
		reg.Participant.Status = status
		reg.Participant.UpdateInstant = s.now()
		s.registrations[name] = reg
		applied[name] = status
		changed = append(changed, reg.Clone())
	}
	s.mu.Unlock()

	for _, reg := range changed {
		if err := s.store.SaveRegistration(ctx, reg); err != nil {
			return nil, fmt.Errorf("persist registration %s: %w", reg.Name(), err)
		}
	}
	if len(applied) < len(set) {
		s.logger.Debug("ignored statuses for unknown participants",
			logging.String("plant", plant),
			logging.Int("unknown", len(set)-len(applied)))
	}
	return applied, nil
}

// GetAllRegistrations returns copies of all registrations in registration
// order.
func (s *Service) GetAllRegistrations(context.Context) ([]participant.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]participant.Registration, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.registrations[name].Clone())
	}
	return out, nil
}

func (s *Service) putRegistrationLocked(reg participant.Registration) {
	if _, ok := s.registrations[reg.Name()]; !ok {
		s.order = append(s.order, reg.Name())
	}
	s.registrations[reg.Name()] = reg
}

func (s *Service) dropRegistrationLocked(name string) {
	delete(s.registrations, name)
	if i := slices.Index(s.order, name); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func belongsTo(reg participant.Registration, plant string) bool {
	return reg.Name() == plant || reg.Participant.ProcessingPlant == plant
}
