package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	store, err := database.StartGORM()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	gormDB := store.GetDB().(*gorm.DB)

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("School Back Office - Database Seeding")
	fmt.Println(separator)

	if err := database.RunSeeds(gormDB); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	if err := seedPrograms(gormDB); err != nil {
		log.Fatalf("Program seeding failed: %v", err)
	}

	fmt.Println(separator)
	fmt.Println("Seeding completed successfully!")
	fmt.Println(separator)
}

// seedPrograms goes through ProgramService so fees and default plans are derived the same way as in the API
func seedPrograms(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Program{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Programs already exist, skipping...")
		return nil
	}

	ctx := context.Background()
	actor := services.SystemContext()
	activity := services.NewActivityService(db)
	programs := services.NewProgramService(db, activity)
	curriculum := services.NewCurriculumService(db, activity)

	inputs := []services.ProgramInput{
		{
			Name:              "Diploma in Data Science",
			ProgramType:       model.ProgramTypeOnline,
			Duration:          12,
			BaseFee:           decimal.NewFromInt(80000),
			RegistrationFee:   decimal.NewFromInt(5000),
			LateFeePercentage: decimal.NewFromInt(2),
		},
		{
			Name:              "Certificate in Hospitality Management",
			ProgramType:       model.ProgramTypeOnsite,
			Duration:          6,
			BaseFee:           decimal.NewFromInt(100000),
			RegistrationFee:   decimal.NewFromInt(5000),
			LateFeePercentage: decimal.NewFromInt(2),
		},
		{
			Name:        "Grade 10 Science",
			ProgramType: model.ProgramTypeSchool,
			Duration:    10,
			BaseFee:     decimal.NewFromInt(45000),
		},
	}

	for _, input := range inputs {
		program, err := programs.CreateProgram(ctx, actor, input)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", input.Name, err)
		}
		log.Printf("Created program %s (total fee %s)\n", program.Code, program.TotalFee.StringFixed(2))

		course, err := curriculum.CreateCourse(ctx, actor, program.ID, services.CourseInput{
			Code:       program.Code + "-101",
			Name:       "Foundations",
			Credits:    4,
			CourseType: model.CourseTypeCore,
		})
		if err != nil {
			return fmt.Errorf("failed to create course for %s: %w", program.Code, err)
		}

		class := model.ClassBatch{
			CourseID:  course.ID,
			ProgramID: program.ID,
			Name:      program.Code + " Batch 1",
			StartDate: time.Now().AddDate(0, 1, 0).Truncate(24 * time.Hour),
			Status:    model.ClassStatusActive,
		}
		if err := db.Create(&class).Error; err != nil {
			return fmt.Errorf("failed to create class for %s: %w", program.Code, err)
		}
	}
	return nil
}
