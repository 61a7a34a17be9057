package storage

import (
	"slices"
	"strings"
)

func (s *Storage) DisableModule(guildID, module string) error {
	module = strings.ToLower(module)
	return s.update(guildID, func(r *Record) error {
		if !slices.Contains(r.ModulesDisabled, module) {
			r.ModulesDisabled = append(r.ModulesDisabled, module)
		}
		return nil
	})
}

func (s *Storage) EnableModule(guildID, module string) error {
	module = strings.ToLower(module)
	return s.update(guildID, func(r *Record) error {
		r.ModulesDisabled = slices.DeleteFunc(r.ModulesDisabled, func(m string) bool { return m == module })
		return nil
	})
}

func (s *Storage) IsModuleDisabled(guildID, module string) (bool, error) {
	record, err := s.view(guildID)
	if err != nil {
		return false, err
	}
	return slices.Contains(record.ModulesDisabled, strings.ToLower(module)), nil
}

func (s *Storage) DisabledModules(guildID string) ([]string, error) {
	record, err := s.view(guildID)
	if err != nil {
		return nil, err
	}
	return record.ModulesDisabled, nil
}
