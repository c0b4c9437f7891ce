package database

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// RunSeeds migrates and seeds the reference rows
func RunSeeds(db *gorm.DB) error {
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return NewSeeder(db).SeedAll()
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("Starting database seeding...")

	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedStudents(); err != nil {
		return fmt.Errorf("failed to seed students: %w", err)
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the default super admin from ADMIN_EMAIL and ADMIN_PASSWORD
func (s *Seeder) SeedAdminUser() error {
	var count int64
	if err := s.db.Model(&model.User{}).
		Where("role IN ?", []string{model.RoleAdmin, model.RoleSuperAdmin}).
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping...")
		return nil
	}

	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		log.Println("ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "System Administrator",
		Role:         model.RoleSuperAdmin,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("Created admin user: %s\n", admin.Email)
	return nil
}

// SeedStudents creates a few sample students for local development
func (s *Seeder) SeedStudents() error {
	var count int64
	if err := s.db.Model(&model.Student{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Students already exist, skipping...")
		return nil
	}

	students := []model.Student{
		{Name: "Aarav Sharma", Email: "aarav.sharma@example.com", Phone: "+919800000001"},
		{Name: "Diya Patel", Email: "diya.patel@example.com", Phone: "+919800000002"},
		{Name: "Kabir Singh", Email: "kabir.singh@example.com"},
	}

	if err := s.db.Create(&students).Error; err != nil {
		return err
	}

	log.Printf("Created %d students\n", len(students))
	return nil
}
