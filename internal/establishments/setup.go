package establishments

import (
	"log"

	"github.com/glitchcodes/restroom-backend/internal/db"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "restroom"); err != nil {
		log.Fatal("Failed to ensure schema restroom: ", err)
	}

	if err := db.DB.AutoMigrate(&Establishment{}, &CodeSubmission{}, &CodeReport{}); err != nil {
		log.Fatal("Failed to auto-migrate restroom tables: ", err)
	}
}
