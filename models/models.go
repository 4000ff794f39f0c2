package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// Database schema overview:
// 1. users - Authenticated principals; credential state lives with the auth collaborator
// 2. interviews - One mock-interview session per row, with running token accounting
// 3. turns - Ordered, append-only conversation turns for an interview
// 4. audio_recordings - Candidate answer recordings, keyed by (interview, question index)
// 5. pending_audio - Recordings uploaded before their user turn exists
// 6. feedbacks - The scored evaluation written once when an interview completes
